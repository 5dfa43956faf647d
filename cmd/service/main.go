package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"bandmate-web/internal/api"
	"bandmate-web/internal/chat"
	"bandmate-web/internal/session"
	"bandmate-web/internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("bandmate-web: load .env: %v", err)
	}

	port := getenv("PORT", "5175")
	apiURL := getenv("API_URL", "http://localhost:3000/api")
	realtimeURL := getenv("REALTIME_URL", "ws://localhost:3000/ws")
	redisURL := getenv("REDIS_URL", "redis://localhost:6379")
	cookieSecret := getenv("COOKIE_SECRET", "")
	sessionTTL := getenvDuration("SESSION_TTL", 24*time.Hour)

	// Dev tunnel bypass header, off unless configured.
	bypassHeader := getenv("BYPASS_HEADER", "")
	bypassValue := getenv("BYPASS_HEADER_VALUE", "true")

	if cookieSecret == "" {
		log.Fatalf("bandmate-web: COOKIE_SECRET is empty, cannot sign sessions")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("bandmate-web: redis: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	var apiOpts []api.Option
	if bypassHeader != "" {
		apiOpts = append(apiOpts, api.WithHeader(bypassHeader, bypassValue))
	}
	backend := api.NewClient(apiURL, apiOpts...)

	sessions := session.NewStore(rdb, "bandmate:session", sessionTTL)
	cookies := session.NewCookies([]byte(cookieSecret), "bandmate_session")

	srv := web.NewServer(backend, sessions, cookies, func() chat.Transport {
		return chat.NewSocket(realtimeURL, chat.DefaultSocketSettings())
	})

	log.Printf("bandmate-web on :%s (API=%s, WS=%s)", port, apiURL, realtimeURL)
	log.Fatal(http.ListenAndServe(":"+port, srv.Router()))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("bandmate-web: invalid %s: %v", k, err)
	}
	return d
}
