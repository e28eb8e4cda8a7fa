package scheduler

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the message the scheduler job publishes to the delivery topic
// on every run. The notify endpoint decodes it to learn which user to check.
type Payload struct {
	// EmailAddress is the user whose mailbox the check targets.
	EmailAddress string `json:"emailAddress"`

	// Timestamp is when the job was (re-)registered.
	Timestamp time.Time `json:"timestamp"`
}

// EncodePayload serializes the payload for a Pub/Sub message body
// (JSON wrapped in standard base64, as the API transports message data).
func EncodePayload(p Payload) (string, error) {
	if p.EmailAddress == "" {
		return "", fmt.Errorf("payload email address cannot be empty")
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(data string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Payload{}, fmt.Errorf("decoding payload base64: %w", err)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decoding payload json: %w", err)
	}
	if p.EmailAddress == "" {
		return Payload{}, fmt.Errorf("payload has no email address")
	}
	return p, nil
}
