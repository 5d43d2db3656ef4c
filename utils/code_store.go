package utils

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// GenerateVerificationCode creates a numeric code with given length.
func GenerateVerificationCode(n int) string {
	if n <= 0 {
		n = 6
	}
	digits := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			v = big.NewInt(time.Now().UnixNano() % 10)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}

type expiringValue struct {
	value     string
	expiresAt time.Time
}

// memoryKV is the in-process fallback used when Redis is absent or failing.
type memoryKV struct {
	mu    sync.Mutex
	items map[string]expiringValue
	now   func() time.Time
}

func newMemoryKV() *memoryKV {
	return &memoryKV{items: map[string]expiringValue{}, now: time.Now}
}

func (m *memoryKV) set(key, value string, ttl time.Duration) {
	m.mu.Lock()
	m.items[key] = expiringValue{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

func (m *memoryKV) setNX(key, value string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[key]; ok && m.now().Before(e.expiresAt) {
		return false
	}
	m.items[key] = expiringValue{value: value, expiresAt: m.now().Add(ttl)}
	return true
}

func (m *memoryKV) get(key string, del bool) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.items, key)
		return "", false
	}
	if del {
		delete(m.items, key)
	}
	return e.value, true
}

func (m *memoryKV) del(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

const getDelScript = `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`

// redisGetDel reads and removes key atomically. ok is false on Redis errors so callers can fall back.
func redisGetDel(ctx context.Context, rc *redis.Client, key string) (val string, found bool, ok bool) {
	// Prefer GETDEL (Redis >= 6.2)
	v, err := rc.GetDel(ctx, key).Result()
	if err == nil {
		return v, true, true
	}
	if err == redis.Nil {
		return "", false, true
	}
	res, err := rc.Eval(ctx, getDelScript, []string{key}).Result()
	if err == redis.Nil {
		return "", false, true
	}
	if err != nil {
		return "", false, false
	}
	s, isStr := res.(string)
	return s, isStr, true
}

// CodeStore keeps email verification codes and send cooldowns. Prefer Redis; fallback to memory.
type CodeStore struct {
	rc  *redis.Client
	mem *memoryKV
}

// NewCodeStore returns a store over rc; rc may be nil.
func NewCodeStore(rc *redis.Client) *CodeStore {
	return &CodeStore{rc: rc, mem: newMemoryKV()}
}

func codeKey(email string) string {
	return "verify:email:" + email
}

func cooldownKey(email string) string {
	return "cooldown:email:" + email
}

// Save stores a code for an email with TTL.
func (s *CodeStore) Save(email, code string, ttl time.Duration) {
	if s.rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.rc.Set(ctx, codeKey(email), code, ttl).Err(); err == nil {
			return
		}
	}
	s.mem.set(codeKey(email), code, ttl)
}

// VerifyAndConsume checks a code and consumes it if valid.
func (s *CodeStore) VerifyAndConsume(email, code string) bool {
	if code == "" {
		return false
	}
	if s.rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, found, ok := redisGetDel(ctx, s.rc, codeKey(email)); ok {
			return found && v == code
		}
		// On Redis error fall through to memory
	}
	v, found := s.mem.get(codeKey(email), false)
	if !found || v != code {
		return false
	}
	s.mem.del(codeKey(email))
	return true
}

// TryCooldown sets a cooldown for sending a code. Returns true if set, false if cooling down.
func (s *CodeStore) TryCooldown(email string, cooldown time.Duration) bool {
	if s.rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ok, err := s.rc.SetNX(ctx, cooldownKey(email), "1", cooldown).Result(); err == nil {
			return ok
		}
	}
	return s.mem.setNX(cooldownKey(email), "1", cooldown)
}
