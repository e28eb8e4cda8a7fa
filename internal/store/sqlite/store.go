package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"

	"github.com/teemow/gmailnotifier/internal/logging"
	"github.com/teemow/gmailnotifier/internal/store"
)

// Store is the SQLite-backed store.Store implementation.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore opens (creating if necessary) the database at dbPath and applies
// pending migrations. If dbPath is empty, ~/.gmailnotifier/gmailnotifier.db
// is used. The connection runs in WAL mode with a busy timeout so short
// cross-request write races resolve by last-write-wins instead of erroring.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".gmailnotifier", "gmailnotifier.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps the writer serialized; the workload is one
	// user clicking through a handful of handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	logger.Debug("opened sqlite store", slog.String("path", dbPath), logging.Component("store"))

	return &Store{db: db, logger: logger}, nil
}

// SaveCredential persists the OAuth token for the given email as JSON,
// replacing any previous credential.
func (s *Store) SaveCredential(ctx context.Context, email string, token *oauth2.Token) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (email, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at
	`, email, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// GetCredential returns the stored OAuth token for the given email.
func (s *Store) GetCredential(ctx context.Context, email string) (*oauth2.Token, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT token FROM credentials WHERE email = ?", email,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("decoding credential: %w", err)
	}
	return &token, nil
}

// HasCredential reports whether a credential exists for the given email.
func (s *Store) HasCredential(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM credentials WHERE email = ?", email,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking credential: %w", err)
	}
	return true, nil
}

// SaveQuery overwrites the stored search query for the given email.
func (s *Store) SaveQuery(ctx context.Context, email, query string, updatedAt time.Time) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queries (email, query, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			query = excluded.query,
			last_updated = excluded.last_updated
	`, email, query, updatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving query: %w", err)
	}
	return nil
}

// GetQuery returns the stored search query for the given email.
func (s *Store) GetQuery(ctx context.Context, email string) (*store.StoredQuery, error) {
	var (
		query   string
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT query, last_updated FROM queries WHERE email = ?", email,
	).Scan(&query, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading query: %w", err)
	}

	lastUpdated, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return nil, fmt.Errorf("parsing query timestamp: %w", err)
	}

	return &store.StoredQuery{
		Email:       email,
		Query:       query,
		LastUpdated: lastUpdated,
	}, nil
}

// SaveLastRun records the last-run time for the given email.
func (s *Store) SaveLastRun(ctx context.Context, email string, at time.Time) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_runs (email, last_run)
		VALUES (?, ?)
		ON CONFLICT(email) DO UPDATE SET
			last_run = excluded.last_run
	`, email, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving last run: %w", err)
	}
	return nil
}

// GetLastRun returns the recorded last-run time for the given email.
func (s *Store) GetLastRun(ctx context.Context, email string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_run FROM last_runs WHERE email = ?", email,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("loading last run: %w", err)
	}

	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last run timestamp: %w", err)
	}
	return at, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
