package gmail

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps the Gmail Users service for the two calls the notifier
// makes: resolving the authenticated user's email address and listing
// messages that match the stored search query.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a Gmail client authenticated by the given token source.
// Additional options (custom endpoint, plain HTTP client) are primarily for
// tests against a fake API server.
func NewClient(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	all := make([]option.ClientOption, 0, len(opts)+1)
	if ts != nil {
		all = append(all, option.WithTokenSource(ts))
	}
	all = append(all, opts...)

	svc, err := gmail.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Client{svc: svc.Users}, nil
}

// Profile returns the authenticated user's email address.
//
// This is the authoritative identity for all stored records: the address
// comes from Google for the credential in hand, never from user input.
func (c *Client) Profile(ctx context.Context) (string, error) {
	profile, err := c.svc.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetching gmail profile: %w", err)
	}
	if profile.EmailAddress == "" {
		return "", fmt.Errorf("gmail profile has no email address")
	}
	return profile.EmailAddress, nil
}

// SearchSince lists all messages matching the query that were received
// after the given time. A zero time searches without a lower bound.
func (c *Client) SearchSince(ctx context.Context, query string, after time.Time) ([]*gmail.Message, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	q := query
	if !after.IsZero() {
		// Gmail's after: operator accepts epoch seconds.
		q = fmt.Sprintf("%s after:%d", query, after.Unix())
	}

	var matched []*gmail.Message
	pageToken := ""
	for {
		req := c.svc.Messages.List("me").Q(q).Context(ctx)
		if pageToken != "" {
			req.PageToken(pageToken)
		}
		res, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}
		matched = append(matched, res.Messages...)
		if res.NextPageToken == "" {
			return matched, nil
		}
		pageToken = res.NextPageToken
	}
}
