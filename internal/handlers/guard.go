// guard.go protects the appliance account from lockout.
//
// FortiOS locks an administrator out after repeated failed logins. Once
// threshold consecutive polls fail authentication, further polls are
// rejected for an escalating cooldown (starting at 30s, doubling each time,
// capped at 5 minutes). Any poll that gets past authentication resets both
// the counter and the cooldown. State is in-memory only.

package handlers

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lcalzado/vpn-monitor/internal/appliance"
)

const (
	// DefaultFailureThreshold is consecutive authentication failures before blocking.
	DefaultFailureThreshold = 3

	guardInitialBlock = 30 * time.Second
	guardMaxBlock     = 5 * time.Minute
)

// ErrBlocked is returned while polls are being refused.
type ErrBlocked struct {
	Failures   int
	RetryAfter time.Duration
}

func (e *ErrBlocked) Error() string {
	return fmt.Sprintf("polling suspended after %d consecutive authentication failures (retry after %s)",
		e.Failures, e.RetryAfter.Round(time.Second))
}

// FailureGuard counts consecutive authentication failures.
type FailureGuard struct {
	mu                  sync.Mutex
	threshold           int
	consecutiveFailures int
	blockedUntil        time.Time
	blockDuration       time.Duration

	// Clock function for testing.
	nowFunc func() time.Time
}

// NewFailureGuard creates a guard that blocks after threshold consecutive
// authentication failures. A threshold of 0 uses DefaultFailureThreshold.
func NewFailureGuard(threshold int) *FailureGuard {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &FailureGuard{threshold: threshold, nowFunc: time.Now}
}

// Allow returns nil if a poll may proceed, or an *ErrBlocked.
func (g *FailureGuard) Allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFunc()
	if !g.blockedUntil.IsZero() && now.Before(g.blockedUntil) {
		return &ErrBlocked{
			Failures:   g.consecutiveFailures,
			RetryAfter: g.blockedUntil.Sub(now),
		}
	}
	return nil
}

// Record updates the guard with the outcome of a poll. Authentication
// failures count towards the threshold; a successful poll, or one that failed
// after logging in, resets it. Connection failures leave it unchanged.
func (g *FailureGuard) Record(err error) {
	switch {
	case err == nil, errors.Is(err, appliance.ErrCommand), errors.Is(err, appliance.ErrParse):
		g.reset()
	case errors.Is(err, appliance.ErrAuthentication):
		g.recordFailure()
	}
}

func (g *FailureGuard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveFailures = 0
	g.blockedUntil = time.Time{}
	g.blockDuration = 0
}

func (g *FailureGuard) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutiveFailures++
	if g.consecutiveFailures < g.threshold {
		return
	}

	if g.blockDuration == 0 {
		g.blockDuration = guardInitialBlock
	} else {
		g.blockDuration *= 2
		if g.blockDuration > guardMaxBlock {
			g.blockDuration = guardMaxBlock
		}
	}
	g.blockedUntil = g.nowFunc().Add(g.blockDuration)
	log.Printf("[handlers] polling blocked for %s after %d consecutive authentication failures",
		g.blockDuration, g.consecutiveFailures)
}

// State returns the current failure count and block expiry.
func (g *FailureGuard) State() (consecutiveFailures int, blockedUntil time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.consecutiveFailures, g.blockedUntil
}
