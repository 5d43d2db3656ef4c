package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/vibemusic/config"
)

// Registration throttling outcomes.
var (
	ErrRegisterBanned     = errors.New("too many failed registrations, try again later")
	ErrRegisterCooldown   = errors.New("registration attempted too quickly")
	ErrRegisterDailyLimit = errors.New("daily registration limit reached for this address")
)

// RegisterLimits tunes RegisterGuard.
type RegisterLimits struct {
	Cooldown         time.Duration
	MaxPerDay        int
	MaxFailedPerHour int
	BanFor           time.Duration
}

// RegisterLimitsFrom reads the register.* settings.
func RegisterLimitsFrom(cfg config.AppConfig) RegisterLimits {
	return RegisterLimits{
		Cooldown:         time.Duration(cfg.RegisterAttemptCooldownSec) * time.Second,
		MaxPerDay:        cfg.RegisterMaxPerIPPerDay,
		MaxFailedPerHour: cfg.RegisterFailedMaxPerIPPerHour,
		BanFor:           time.Duration(cfg.RegisterTempBanMinutes) * time.Minute,
	}
}

// RegisterGuard throttles account creation per client IP. Every check fails open when Redis is unavailable.
type RegisterGuard struct {
	rc     *redis.Client
	limits RegisterLimits
	now    func() time.Time
}

func NewRegisterGuard(rc *redis.Client, limits RegisterLimits) *RegisterGuard {
	if limits.BanFor <= 0 {
		limits.BanFor = time.Hour
	}
	return &RegisterGuard{rc: rc, limits: limits, now: time.Now}
}

func regKey(parts ...string) string {
	return "reg:" + strings.Join(parts, ":")
}

// Allow is called before a registration attempt.
func (g *RegisterGuard) Allow(ctx context.Context, ip string) error {
	if g == nil || g.rc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if n, err := g.rc.Exists(ctx, regKey("ban", ip)).Result(); err == nil && n > 0 {
		return ErrRegisterBanned
	}
	if g.limits.Cooldown > 0 {
		ok, err := g.rc.SetNX(ctx, regKey("cooldown", ip), "1", g.limits.Cooldown).Result()
		if err == nil && !ok {
			return ErrRegisterCooldown
		}
	}
	if g.limits.MaxPerDay > 0 {
		n, err := g.rc.Get(ctx, g.dailyKey(ip)).Int()
		if err == nil && n >= g.limits.MaxPerDay {
			return ErrRegisterDailyLimit
		}
	}
	return nil
}

// Failed records a failed attempt and bans the address once the hourly threshold is crossed.
func (g *RegisterGuard) Failed(ctx context.Context, ip string) {
	if g == nil || g.rc == nil || g.limits.MaxFailedPerHour <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	key := regKey("failhour", ip, g.now().Format("2006010215"))
	n, err := g.rc.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	_ = g.rc.Expire(ctx, key, time.Hour).Err()
	if int(n) >= g.limits.MaxFailedPerHour {
		_ = g.rc.Set(ctx, regKey("ban", ip), fmt.Sprintf("ban-%s", ip), g.limits.BanFor).Err()
	}
}

// Succeeded counts a completed registration towards today's limit.
func (g *RegisterGuard) Succeeded(ctx context.Context, ip string) {
	if g == nil || g.rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	key := g.dailyKey(ip)
	if err := g.rc.Incr(ctx, key).Err(); err == nil {
		now := g.now()
		// expire at the end of the day
		ttl := time.Until(time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location()))
		_ = g.rc.Expire(ctx, key, ttl).Err()
	}
}

func (g *RegisterGuard) dailyKey(ip string) string {
	return regKey("succday", ip, g.now().Format("20060102"))
}
