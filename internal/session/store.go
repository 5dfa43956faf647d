package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Context identifies the signed-in user. It is built once at the
// application root and handed to every component that needs it; nothing in
// this repo reads identity from ambient state.
type Context struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
}

var ErrNotFound = errors.New("session not found")

// Store keeps session contexts in redis under "<prefix>:<id>" as JSON,
// expiring after TTL.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Save stores sc under a fresh session id and returns the id.
func (s *Store) Save(ctx context.Context, sc Context) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session: save: %w", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (Context, error) {
	result, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Context{}, ErrNotFound
	}
	if err != nil {
		return Context{}, fmt.Errorf("session: get: %w", err)
	}
	var sc Context
	if err := json.Unmarshal([]byte(result), &sc); err != nil {
		return Context{}, fmt.Errorf("session: unmarshal: %w", err)
	}
	return sc, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}
