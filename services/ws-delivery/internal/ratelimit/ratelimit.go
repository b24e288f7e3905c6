// Package ratelimit throttles ticket issuance per principal, grounded
// on Pachada-go_api_nosql/internal/transport/http/middleware/ratelimit.go's
// per-IP token-bucket limiter, generalized to key on the authenticated
// user id instead of the remote address.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-principal token-bucket rate limiter with automatic
// stale-entry cleanup.
type Limiter struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*entry
	r        rate.Limit
	burst    int
	stopOnce sync.Once
	stop     chan struct{}
}

func New(perSecond float64, burst int) *Limiter {
	l := &Limiter{
		entries: make(map[uuid.UUID]*entry),
		r:       rate.Limit(perSecond),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether principal may issue another ticket right now.
func (l *Limiter) Allow(principal uuid.UUID) bool {
	l.mu.Lock()
	e, ok := l.entries[principal]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.r, l.burst)}
		l.entries[principal] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			for id, e := range l.entries {
				if time.Since(e.lastSeen) > 10*time.Minute {
					delete(l.entries, id)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop ends the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
