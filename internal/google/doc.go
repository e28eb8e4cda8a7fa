// Package google provides the OAuth2 client for the authorization flow.
//
// The Client builds authorization URLs with offline access and a forced
// consent prompt (so every authorization yields a refresh token), exchanges
// authorization codes for tokens, and turns stored tokens into refreshing
// token sources for Google API calls. Persisting tokens is the store's job;
// this package stays stateless.
package google
