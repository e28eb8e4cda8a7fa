package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes are the Google OAuth scopes the notifier requests.
//
// Read-only mail access is all the periodic check needs; the user's email
// address is resolved through the Gmail profile endpoint, which the same
// scope covers.
var DefaultOAuthScopes = []string{
	gmail.GmailReadonlyScope,
}
