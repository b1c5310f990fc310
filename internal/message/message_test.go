package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequiresType(t *testing.T) {
	_, err := Decode([]byte(`{"image":"x"}`))
	assert.ErrorContains(t, err, "missing type")

	_, err = Decode([]byte(`nope`))
	assert.Error(t, err)
}

func TestEventPayload(t *testing.T) {
	msg, err := NewEvent("open-files", map[string][]string{"file_paths": {"/tmp/doc.md"}})
	require.NoError(t, err)

	b, err := msg.Encode()
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, TypeEvent, got.Type)
	assert.Equal(t, "open-files", got.Event)

	var payload struct {
		FilePaths []string `json:"file_paths"`
	}
	require.NoError(t, got.DecodePayload(&payload))
	assert.Equal(t, []string{"/tmp/doc.md"}, payload.FilePaths)

	assert.Error(t, (&Message{Type: TypeEvent, Event: "x"}).DecodePayload(&payload))
}

func TestAuthToken(t *testing.T) {
	msg := NewAuth("s3cret", "laptop")
	assert.NotEqual(t, "s3cret", msg.Token)
	assert.Equal(t, "s3cret", msg.AuthToken())
	assert.Equal(t, "laptop", msg.Source)

	assert.Empty(t, (&Message{Type: TypeAuth, Token: "%%%"}).AuthToken())
}

func TestErrorf(t *testing.T) {
	msg := Errorf("schedule copy: %v", "copy queue full")
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "schedule copy: copy queue full", msg.Error)
}
