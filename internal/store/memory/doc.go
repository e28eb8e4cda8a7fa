// Package memory provides an in-memory store.Store implementation for tests
// and ephemeral runs. All records are lost when the process exits.
package memory
