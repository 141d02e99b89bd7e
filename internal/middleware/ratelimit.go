package middleware

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/mediatag/internal/apperror"
)

// rateLimitEntry tracks request counts for one key within a time window.
type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// RateLimitKey picks the bucket a request counts against.
type RateLimitKey func(c echo.Context) string

// ByClient buckets requests by the :clientID route parameter, falling back
// to the caller's IP.
func ByClient(c echo.Context) string {
	if id := c.Param("clientID"); id != "" {
		return "client:" + id
	}
	return "ip:" + c.RealIP()
}

// RateLimit allows maxRequests per key within window and answers 429 past
// that. Expired entries are swept on access once per window.
func RateLimit(maxRequests int, window time.Duration, key RateLimitKey) echo.MiddlewareFunc {
	var (
		mu        sync.Mutex
		entries   = make(map[string]*rateLimitEntry)
		lastSweep time.Time
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			k := key(c)
			now := time.Now()

			mu.Lock()
			if now.Sub(lastSweep) > window {
				for ek, e := range entries {
					if now.Sub(e.windowStart) > window {
						delete(entries, ek)
					}
				}
				lastSweep = now
			}

			entry, exists := entries[k]
			if !exists || now.Sub(entry.windowStart) > window {
				entries[k] = &rateLimitEntry{count: 1, windowStart: now}
				mu.Unlock()
				return next(c)
			}

			entry.count++
			over := entry.count > maxRequests
			mu.Unlock()

			if over {
				return apperror.NewTooManyRequests("rate limit exceeded, retry later")
			}
			return next(c)
		}
	}
}
