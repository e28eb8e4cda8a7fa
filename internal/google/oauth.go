package google

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Client wraps the OAuth2 configuration for the authorization flow.
//
// It is a thin, stateless layer over golang.org/x/oauth2: it builds
// authorization URLs, exchanges codes for tokens, and turns stored tokens
// into refreshing token sources. Credentials themselves are persisted by
// the store, keyed by the email resolved during the callback flow.
type Client struct {
	conf *oauth2.Config
}

// NewClient creates an OAuth client for the given application credentials.
// redirectURL must match one of the authorized redirect URIs registered
// for the OAuth client in the Google Cloud console.
func NewClient(clientID, clientSecret, redirectURL string) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("OAuth client ID cannot be empty")
	}
	if clientSecret == "" {
		return nil, fmt.Errorf("OAuth client secret cannot be empty")
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("OAuth redirect URL cannot be empty")
	}

	return &Client{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       DefaultOAuthScopes,
		},
	}, nil
}

// AuthCodeURL returns the authorization URL for the given state token.
//
// Offline access plus a forced approval prompt make Google issue a refresh
// token on every authorization, not only the first one. Without the forced
// prompt a re-authorizing user would get a credential that dies with its
// access token.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange converts an authorization code into a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token, nil
}

// TokenSource returns a source that transparently refreshes the given
// stored token as needed.
func (c *Client) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return c.conf.TokenSource(ctx, token)
}

// HTTPClient returns an HTTP client that authenticates requests with the
// given stored token, refreshing it as needed.
func (c *Client) HTTPClient(ctx context.Context, token *oauth2.Token) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource(ctx, token))
}
