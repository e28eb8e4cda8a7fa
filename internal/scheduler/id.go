package scheduler

import "strings"

const (
	jobPrefix   = "gmail-check-"
	topicPrefix = "gmail-notify-"
)

// LocalPartID derives a resource-name-safe identifier from the local part
// of an email address. The result is stable for a given email: lowercased,
// with every character outside [a-z0-9-_] replaced by a hyphen. Callers
// validate the address shape; if no "@" is present the whole string is used.
func LocalPartID(email string) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	local = strings.ToLower(local)

	var b strings.Builder
	b.Grow(len(local))
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// JobID returns the Cloud Scheduler job identifier for the email.
func JobID(email string) string {
	return jobPrefix + LocalPartID(email)
}

// TopicID returns the Pub/Sub delivery topic identifier for the email.
func TopicID(email string) string {
	return topicPrefix + LocalPartID(email)
}
