package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/gmailnotifier/internal/store"
)

// Store keeps all records in process memory. Contents are lost on restart,
// which makes it suitable for tests and for trying the authorization flow
// without a database file.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]*oauth2.Token
	queries     map[string]store.StoredQuery
	lastRuns    map[string]time.Time
	logger      *slog.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		credentials: make(map[string]*oauth2.Token),
		queries:     make(map[string]store.StoredQuery),
		lastRuns:    make(map[string]time.Time),
		logger:      slog.Default(),
	}
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SaveCredential persists the OAuth token for the given email.
func (s *Store) SaveCredential(_ context.Context, email string, token *oauth2.Token) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *token
	s.credentials[email] = &copied
	s.logger.Debug("saved credential", "expiry", token.Expiry)
	return nil
}

// GetCredential returns the stored OAuth token for the given email.
func (s *Store) GetCredential(_ context.Context, email string) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.credentials[email]
	if !ok {
		return nil, store.ErrNotFound
	}

	copied := *token
	return &copied, nil
}

// HasCredential reports whether a credential exists for the given email.
func (s *Store) HasCredential(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.credentials[email]
	return ok, nil
}

// SaveQuery overwrites the stored search query for the given email.
func (s *Store) SaveQuery(_ context.Context, email, query string, updatedAt time.Time) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries[email] = store.StoredQuery{
		Email:       email,
		Query:       query,
		LastUpdated: updatedAt,
	}
	return nil
}

// GetQuery returns the stored search query for the given email.
func (s *Store) GetQuery(_ context.Context, email string) (*store.StoredQuery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.queries[email]
	if !ok {
		return nil, store.ErrNotFound
	}

	copied := q
	return &copied, nil
}

// SaveLastRun records the last-run time for the given email.
func (s *Store) SaveLastRun(_ context.Context, email string, at time.Time) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRuns[email] = at
	return nil
}

// GetLastRun returns the recorded last-run time for the given email.
func (s *Store) GetLastRun(_ context.Context, email string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.lastRuns[email]
	if !ok {
		return time.Time{}, store.ErrNotFound
	}

	return at, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Stats returns record counts, useful for the detailed health endpoint.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		"credentials": len(s.credentials),
		"queries":     len(s.queries),
		"last_runs":   len(s.lastRuns),
	}
}
