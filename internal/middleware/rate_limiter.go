package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"sostrack/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateEntry tracks request counts per IP within one window.
type rateEntry struct {
	count     int
	windowEnd time.Time
	mu        sync.Mutex
}

// ipLimiter is a fixed-window counter per client IP.
type ipLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	entries map[string]*rateEntry
}

// RateLimiter rejects a client IP with 429 after limit requests per window.
// Expired entries are purged in the background for the life of the process.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	l := &ipLimiter{limit: limit, window: window, entries: make(map[string]*rateEntry)}
	go l.purgeLoop(purgeInterval)
	return l.handle
}

func (l *ipLimiter) handle(c *gin.Context) {
	ip := c.ClientIP()

	l.mu.Lock()
	entry, exists := l.entries[ip]
	if !exists {
		entry = &rateEntry{}
		l.entries[ip] = entry
	}
	l.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	if now.After(entry.windowEnd) {
		entry.count = 0
		entry.windowEnd = now.Add(l.window)
	}

	entry.count++
	if entry.count > l.limit {
		c.Header("Retry-After", strconv.Itoa(int(time.Until(entry.windowEnd).Seconds())+1))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("too many requests; try again shortly"))
		return
	}
	c.Next()
}

const purgeInterval = 5 * time.Minute

func (l *ipLimiter) purgeLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		if n := l.purge(time.Now()); n > 0 {
			log.Debug().Int("purged", n).Msg("rate limiter entries purged")
		}
	}
}

func (l *ipLimiter) purge(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	purged := 0
	for ip, entry := range l.entries {
		entry.mu.Lock()
		if now.After(entry.windowEnd) {
			delete(l.entries, ip)
			purged++
		}
		entry.mu.Unlock()
	}
	return purged
}
