package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginTokenStore records tokens issued at login. A token is valid only while it is present,
// so logout and account lockouts take effect before the JWT itself expires.
type LoginTokenStore struct {
	rc  *redis.Client
	mem *memoryKV
}

// NewLoginTokenStore returns a store over rc; rc may be nil.
func NewLoginTokenStore(rc *redis.Client) *LoginTokenStore {
	return &LoginTokenStore{rc: rc, mem: newMemoryKV()}
}

func loginTokenKey(token string) string {
	return "login:token:" + token
}

// Save records token for ttl.
func (s *LoginTokenStore) Save(ctx context.Context, token string, ttl time.Duration) error {
	if s.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rc.Set(ctx, loginTokenKey(token), "1", ttl).Err(); err == nil {
			return nil
		}
	}
	s.mem.set(loginTokenKey(token), "1", ttl)
	return nil
}

// Exists reports whether token is still recorded.
func (s *LoginTokenStore) Exists(ctx context.Context, token string) bool {
	if s.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		n, err := s.rc.Exists(ctx, loginTokenKey(token)).Result()
		if err == nil && n > 0 {
			return true
		}
	}
	_, ok := s.mem.get(loginTokenKey(token), false)
	return ok
}

// Remove forgets token.
func (s *LoginTokenStore) Remove(ctx context.Context, token string) error {
	s.mem.del(loginTokenKey(token))
	if s.rc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rc.Del(ctx, loginTokenKey(token)).Err()
}
