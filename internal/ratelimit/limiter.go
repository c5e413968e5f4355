// Package ratelimit throttles identity operations on the client before they
// reach the user pool.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	// Code resend limits
	ResendCooldown   time.Duration // Minimum time between code resends (default: 60s)
	ResendMaxPerHour int           // Max resends per username per hour (default: 5)

	// Sign-in limits
	SignInMaxAttempts int           // Failed attempts before lockout (default: 5)
	SignInLockout     time.Duration // Lockout duration after max attempts (default: 5m)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		ResendCooldown:    60 * time.Second,
		ResendMaxPerHour:  5,
		SignInMaxAttempts: 5,
		SignInLockout:     5 * time.Minute,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

type entry struct {
	count    int
	firstAt  time.Time // First attempt in window
	lastAt   time.Time // Most recent attempt (for cooldown)
	lockedAt time.Time // Zero if not locked
}

// Limiter tracks resends and failed sign-ins per username.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.RWMutex
	// Keyed by hash of the normalized username
	resends map[string]*entry
	signIns map[string]*entry

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		resends:       make(map[string]*entry),
		signIns:       make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// CheckResend reports whether a confirmation code may be resent.
// Does NOT record the attempt - call RecordResend once the code is sent.
func (l *Limiter) CheckResend(username string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	key := hashKey("resend:", normalizeIdentifier(username))

	l.mu.RLock()
	defer l.mu.RUnlock()

	e := l.resends[key]
	if e == nil {
		return LimitResult{Allowed: true}
	}
	if elapsed := now.Sub(e.lastAt); elapsed < l.config.ResendCooldown {
		return LimitResult{
			Allowed:    false,
			RetryAfter: l.config.ResendCooldown - elapsed,
			Reason:     "cooldown",
		}
	}
	if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.ResendMaxPerHour {
		return LimitResult{
			Allowed:    false,
			RetryAfter: time.Hour - now.Sub(e.firstAt),
			Reason:     "hourly_limit",
		}
	}
	return LimitResult{Allowed: true}
}

// RecordResend records a code that was actually sent.
func (l *Limiter) RecordResend(username string) {
	now := l.clock.Now()
	key := hashKey("resend:", normalizeIdentifier(username))

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.resends[key]
	if e == nil || now.Sub(e.firstAt) >= time.Hour {
		l.resends[key] = &entry{count: 1, firstAt: now, lastAt: now}
		return
	}
	e.count++
	e.lastAt = now
}

// CheckSignIn reports whether a sign-in attempt may be made.
func (l *Limiter) CheckSignIn(username string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	key := hashKey("signin:", normalizeIdentifier(username))

	l.mu.RLock()
	defer l.mu.RUnlock()

	e := l.signIns[key]
	if e == nil {
		return LimitResult{Allowed: true}
	}
	if !e.lockedAt.IsZero() {
		if elapsed := now.Sub(e.lockedAt); elapsed < l.config.SignInLockout {
			return LimitResult{
				Allowed:    false,
				RetryAfter: l.config.SignInLockout - elapsed,
				Reason:     "lockout",
			}
		}
		// Lockout expired; the next failure starts a fresh window
		return LimitResult{Allowed: true}
	}
	if e.count >= l.config.SignInMaxAttempts {
		return LimitResult{
			Allowed:    false,
			RetryAfter: l.config.SignInLockout,
			Reason:     "max_attempts",
		}
	}
	return LimitResult{Allowed: true}
}

// RecordSignInFailure records a rejected sign-in. Returns true when this
// failure triggered a lockout.
func (l *Limiter) RecordSignInFailure(username string) (lockedOut bool) {
	now := l.clock.Now()
	key := hashKey("signin:", normalizeIdentifier(username))

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.signIns[key]
	if e == nil || (!e.lockedAt.IsZero() && now.Sub(e.lockedAt) >= l.config.SignInLockout) {
		e = &entry{firstAt: now}
		l.signIns[key] = e
	}
	e.count++
	e.lastAt = now
	if e.count >= l.config.SignInMaxAttempts && e.lockedAt.IsZero() {
		e.lockedAt = now
		lockedOut = true
	}
	return lockedOut
}

// RecordSignInSuccess clears the failure counter for username.
func (l *Limiter) RecordSignInSuccess(username string) {
	key := hashKey("signin:", normalizeIdentifier(username))
	l.mu.Lock()
	delete(l.signIns, key)
	l.mu.Unlock()
}

func hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

// normalizeIdentifier lowercases the identifier to prevent case-based bypass.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.resends {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.resends, k)
		}
	}
	maxAge := l.config.SignInLockout + time.Hour
	for k, e := range l.signIns {
		if now.Sub(e.lastAt) > maxAge {
			delete(l.signIns, k)
		}
	}
}

// SanitizeIdentifier masks an identifier for logging.
func SanitizeIdentifier(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if strings.Contains(identifier, "@") {
		parts := strings.Split(identifier, "@")
		if len(parts[0]) > 2 {
			return parts[0][:2] + "***@" + parts[1]
		}
		return "***@" + parts[1]
	}
	// Phone: show last 4 digits
	if len(identifier) >= 4 {
		return "***" + identifier[len(identifier)-4:]
	}
	return "***"
}

// LogLimitExceeded logs a rate limit event with a sanitized identifier.
func LogLimitExceeded(limitType, identifier, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("identifier", SanitizeIdentifier(identifier)).
		Str("reason", reason).
		Msg("Identity rate limit exceeded")
}
