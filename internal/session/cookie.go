package session

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// Cookies wraps the signed browser cookie that names a redis session.
type Cookies struct {
	store *sessions.CookieStore
	name  string
}

func NewCookies(secret []byte, name string) *Cookies {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Cookies{store: store, name: name}
}

// SessionID reads the session id from the request cookie.
func (c *Cookies) SessionID(r *http.Request) (string, bool) {
	sess, err := c.store.Get(r, c.name)
	if err != nil {
		return "", false
	}
	id, ok := sess.Values["session_id"].(string)
	return id, ok && id != ""
}

func (c *Cookies) SetSessionID(w http.ResponseWriter, r *http.Request, id string) error {
	sess, _ := c.store.Get(r, c.name)
	sess.Values["session_id"] = id
	return sess.Save(r, w)
}

func (c *Cookies) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := c.store.Get(r, c.name)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}
