package utils

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RegistrationGuard throttles account creation per client IP. All checks fail open
// when Redis is missing or erroring so registration never hard-depends on it.
type RegistrationGuard struct {
	client    *redis.Client
	cooldown  time.Duration
	maxPerDay int
}

func NewRegistrationGuard(client *redis.Client, cooldownSec, maxPerDay int) *RegistrationGuard {
	return &RegistrationGuard{
		client:    client,
		cooldown:  time.Duration(cooldownSec) * time.Second,
		maxPerDay: maxPerDay,
	}
}

func regKey(parts ...string) string {
	return "reg:" + strings.Join(parts, ":")
}

func dayKey(ip string) string {
	return regKey("succday", ip, time.Now().Format("20060102"))
}

// CooldownTry enforces a short cooldown between attempts per IP.
func (g *RegistrationGuard) CooldownTry(ctx context.Context, ip string) bool {
	if g == nil || g.client == nil || g.cooldown <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ok, err := g.client.SetNX(ctx, regKey("cooldown", ip), "1", g.cooldown).Result()
	if err != nil {
		return true
	}
	return ok
}

// DailyLimitCheck allows up to maxPerDay successful registrations per IP.
func (g *RegistrationGuard) DailyLimitCheck(ctx context.Context, ip string) bool {
	if g == nil || g.client == nil || g.maxPerDay <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	n, err := g.client.Get(ctx, dayKey(ip)).Int()
	if errors.Is(err, redis.Nil) {
		n = 0
	} else if err != nil {
		return true
	}
	return n < g.maxPerDay
}

// DailyIncrement counts a successful registration until the end of the day.
func (g *RegistrationGuard) DailyIncrement(ctx context.Context, ip string) {
	if g == nil || g.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	key := dayKey(ip)
	if err := g.client.Incr(ctx, key).Err(); err == nil {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		_ = g.client.Expire(ctx, key, time.Until(midnight)).Err()
	}
}
