package scheduler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundtrip(t *testing.T) {
	registered := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	data, err := EncodePayload(Payload{
		EmailAddress: "jane@example.com",
		Timestamp:    registered,
	})
	require.NoError(t, err)

	// The wire form must be valid standard base64 for the Pub/Sub API.
	_, err = base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)

	got, err := DecodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.EmailAddress)
	assert.True(t, registered.Equal(got.Timestamp))
}

func TestEncodePayloadRequiresEmail(t *testing.T) {
	_, err := EncodePayload(Payload{Timestamp: time.Now()})
	assert.Error(t, err)
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	_, err := DecodePayload("not base64!!!")
	assert.Error(t, err)

	_, err = DecodePayload(base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.Error(t, err)

	_, err = DecodePayload(base64.StdEncoding.EncodeToString([]byte(`{"timestamp":"2026-03-01T10:00:00Z"}`)))
	assert.Error(t, err, "payload without an email address must be rejected")
}
