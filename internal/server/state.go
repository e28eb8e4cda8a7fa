package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/gmailnotifier/internal/instrumentation"
)

const (
	// StateTokenLength is the length in bytes of generated state parameters.
	StateTokenLength = 32

	// DefaultStateTTL is how long an issued state parameter stays redeemable.
	DefaultStateTTL = 10 * time.Minute
)

// StateRegistry tracks outstanding OAuth state parameters between the
// authorization redirect and the provider callback.
//
// Every state is single-use: Consume deletes it on first sight, so a replayed
// callback carrying the same state is rejected even when the first use failed
// later in the flow.
type StateRegistry struct {
	mu      sync.Mutex
	states  map[string]time.Time // state -> expiry
	ttl     time.Duration
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewStateRegistry creates a state registry. A non-positive ttl falls back to
// DefaultStateTTL. metrics may be nil.
func NewStateRegistry(ttl time.Duration, logger *slog.Logger, metrics *instrumentation.Metrics) *StateRegistry {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &instrumentation.Metrics{} // no-op recorder
	}

	r := &StateRegistry{
		states:  make(map[string]time.Time),
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}

	// Start cleanup goroutine
	go r.cleanup()

	return r
}

// Issue generates a fresh random state parameter and registers it.
func (r *StateRegistry) Issue() (string, error) {
	state, err := generateSecureToken(StateTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate state parameter: %w", err)
	}

	r.mu.Lock()
	r.states[state] = time.Now().Add(r.ttl)
	r.mu.Unlock()

	r.metrics.IncrementPendingAuthFlows(context.Background())

	return state, nil
}

// Consume reports whether state is a currently valid parameter, and deletes
// it either way. Deleting before the expiry check keeps expired entries from
// lingering until the next cleanup pass.
func (r *StateRegistry) Consume(state string) bool {
	r.mu.Lock()
	expiry, exists := r.states[state]
	if exists {
		delete(r.states, state)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}

	r.metrics.DecrementPendingAuthFlows(context.Background())

	if time.Now().After(expiry) {
		r.logger.Debug("state parameter expired")
		return false
	}
	return true
}

// Len returns the number of outstanding state parameters.
func (r *StateRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// cleanup periodically removes expired states that were never consumed
// (abandoned authorization attempts).
func (r *StateRegistry) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		r.cleanupExpired()
	}
}

// cleanupExpired removes expired states.
func (r *StateRegistry) cleanupExpired() {
	r.mu.Lock()
	now := time.Now()
	deleted := 0
	for state, expiry := range r.states {
		if now.After(expiry) {
			delete(r.states, state)
			deleted++
		}
	}
	r.mu.Unlock()

	for i := 0; i < deleted; i++ {
		r.metrics.DecrementPendingAuthFlows(context.Background())
	}

	if deleted > 0 {
		r.logger.Debug("Cleaned up expired state parameters", "deleted", deleted)
	}
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
}
