package store

import "time"

// StoredQuery is the Gmail search query a user saved through the query
// editor, together with the time of the last overwrite.
type StoredQuery struct {
	// Email is the user the query belongs to.
	Email string

	// Query is the Gmail search expression, e.g. "from:billing is:unread".
	Query string

	// LastUpdated is when the query was last written.
	LastUpdated time.Time
}
