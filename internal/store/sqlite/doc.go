// Package sqlite provides the durable store.Store implementation backed by a
// single SQLite database file (modernc.org/sqlite, no cgo). The schema is
// managed by embedded migrations applied on startup.
package sqlite
