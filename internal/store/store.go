package store

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned by lookups when no record exists for the given email.
// Callers must treat it as absence, not as a storage failure.
var ErrNotFound = errors.New("record not found")

// Store persists per-user records keyed by email address.
//
// Writes have overwrite (last-write-wins) semantics; no history is retained.
// GetCredential returns tokens as stored, including expired ones: refreshing
// is the OAuth layer's concern, and an expired access token with a valid
// refresh token is still a usable credential.
type Store interface {
	// SaveCredential persists the OAuth token for the given email,
	// replacing any previous credential.
	SaveCredential(ctx context.Context, email string, token *oauth2.Token) error

	// GetCredential returns the stored OAuth token for the given email.
	// Returns ErrNotFound if the user never completed the authorization flow.
	GetCredential(ctx context.Context, email string) (*oauth2.Token, error)

	// HasCredential reports whether a credential exists for the given email.
	HasCredential(ctx context.Context, email string) (bool, error)

	// SaveQuery overwrites the stored search query for the given email.
	SaveQuery(ctx context.Context, email, query string, updatedAt time.Time) error

	// GetQuery returns the stored search query for the given email.
	// Returns ErrNotFound if no query has been set.
	GetQuery(ctx context.Context, email string) (*StoredQuery, error)

	// SaveLastRun records when the periodic check for the given email
	// last ran (or was registered).
	SaveLastRun(ctx context.Context, email string, at time.Time) error

	// GetLastRun returns the recorded last-run time for the given email.
	// Returns ErrNotFound if no check was ever registered.
	GetLastRun(ctx context.Context, email string) (time.Time, error)

	// Close releases any resources held by the store.
	Close() error
}
