// Package message defines the omnimark control protocol.
//
// All messages are newline-delimited JSON. Binary payloads (images, tokens)
// travel base64-encoded so they are safe to embed in JSON strings.
// Each message is exactly one line: <json>\n
package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Type identifies the kind of message.
type Type string

const (
	TypeAuth       Type = "AUTH"
	TypeCopyImage  Type = "COPY_IMAGE"
	TypeAck        Type = "ACK"
	TypeGetPending Type = "GET_PENDING"
	TypePending    Type = "PENDING"
	TypeOpenFiles  Type = "OPEN_FILES"
	TypeSubscribe  Type = "SUBSCRIBE"
	TypeEvent      Type = "EVENT"
	TypeWindow     Type = "WINDOW"
	TypeMenu       Type = "MENU"
	TypePing       Type = "PING"
	TypePong       Type = "PONG"
	TypeError      Type = "ERROR"
)

// Message is the top-level wire envelope.
type Message struct {
	// Always present
	Type   Type   `json:"type"`
	Source string `json:"source,omitempty"`

	// COPY_IMAGE: base64 image and the caller's request version.
	// ACK echoes Version.
	Image   string `json:"image,omitempty"`
	Version uint32 `json:"version,omitempty"`

	// PENDING, OPEN_FILES
	Paths []string `json:"paths,omitempty"`

	// EVENT
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// WINDOW, MENU
	Action string `json:"action,omitempty"`

	// SUBSCRIBE: Events limits delivery to the named events (empty = all).
	// A Monitor sees events without taking them, so relayed paths still
	// reach the pending store.
	Events  []string `json:"events,omitempty"`
	Monitor bool     `json:"monitor,omitempty"`

	// AUTH: token is base64-encoded.
	Token string `json:"token,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message decode: missing type")
	}
	return &m, nil
}

// NewEvent wraps an event payload in an EVENT message.
func NewEvent(name string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", name, err)
	}
	return &Message{Type: TypeEvent, Event: name, Payload: raw}, nil
}

// DecodePayload unmarshals an EVENT payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("event %s: empty payload", m.Event)
	}
	return json.Unmarshal(m.Payload, v)
}

// NewAuth builds an AUTH message carrying token.
func NewAuth(token, source string) *Message {
	return &Message{
		Type:   TypeAuth,
		Source: source,
		Token:  base64.StdEncoding.EncodeToString([]byte(token)),
	}
}

// AuthToken returns the decoded token of an AUTH message.
func (m *Message) AuthToken() string {
	b, err := base64.StdEncoding.DecodeString(m.Token)
	if err != nil {
		return ""
	}
	return string(b)
}

// Errorf builds an ERROR message.
func Errorf(format string, args ...any) *Message {
	return &Message{Type: TypeError, Error: fmt.Sprintf(format, args...)}
}
