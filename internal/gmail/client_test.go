package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// newFakeClient builds a Client pointed at a fake Gmail API server.
func newFakeClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient(context.Background(), nil,
		option.WithEndpoint(ts.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return c
}

func TestProfile(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/users/me/profile")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&gmail.Profile{
			EmailAddress:  "jane@example.com",
			MessagesTotal: 1204,
		})
	}))

	email, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", email)
}

func TestProfileMissingEmail(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&gmail.Profile{})
	}))

	_, err := c.Profile(context.Background())
	assert.Error(t, err)
}

func TestProfileUpstreamError(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`, http.StatusUnauthorized)
	}))

	_, err := c.Profile(context.Background())
	assert.Error(t, err)
}

func TestSearchSince(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/users/me/messages")

		q := r.URL.Query().Get("q")
		assert.Contains(t, q, "from:billing")
		assert.Contains(t, q, "after:1772000000")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&gmail.ListMessagesResponse{
			Messages: []*gmail.Message{{Id: "m1"}, {Id: "m2"}},
		})
	}))

	after := time.Unix(1772000000, 0)
	matched, err := c.SearchSince(context.Background(), "from:billing", after)
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, "m1", matched[0].Id)
}

func TestSearchSincePaginates(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(&gmail.ListMessagesResponse{
				Messages:      []*gmail.Message{{Id: "m1"}},
				NextPageToken: "page-2",
			})
			return
		}
		json.NewEncoder(w).Encode(&gmail.ListMessagesResponse{
			Messages: []*gmail.Message{{Id: "m2"}, {Id: "m3"}},
		})
	}))

	matched, err := c.SearchSince(context.Background(), "is:unread", time.Time{})
	require.NoError(t, err)
	assert.Len(t, matched, 3)
}

func TestSearchSinceEmptyQuery(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no API call expected for an empty query")
	}))

	_, err := c.SearchSince(context.Background(), "", time.Time{})
	assert.Error(t, err)
}

func TestSearchSinceZeroTimeOmitsBound(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotContains(t, r.URL.Query().Get("q"), "after:")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&gmail.ListMessagesResponse{})
	}))

	matched, err := c.SearchSince(context.Background(), "is:unread", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, matched)
}
