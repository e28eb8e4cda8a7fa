// Package store defines the persistence contract for the gmailnotifier service.
//
// All records are keyed by the user's email address, which is resolved
// authoritatively from the Google profile during the OAuth callback flow:
//
//   - Credential: the OAuth token (access token, refresh token, expiry)
//   - StoredQuery: the Gmail search query the periodic check runs
//   - LastRun: the timestamp of the last completed (or registered) check
//
// Two implementations exist: store/sqlite for durable single-node storage and
// store/memory for tests and ephemeral runs. Lookups distinguish absence
// (ErrNotFound) from storage failure so handlers can map them to different
// HTTP responses.
package store
