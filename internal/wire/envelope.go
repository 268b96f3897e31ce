package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope is returned when a frame is not a JSON object.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrMissingType is returned when the envelope has no "type" field.
	ErrMissingType = errors.New("envelope is missing a type")
)

// Envelope is the wire unit exchanged over a connection. The payload is kept
// raw so each operation can decode it against its own request type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the payload of an "error"-typed envelope. Type carries the
// offending operation type when one is known, otherwise null.
type ErrorPayload struct {
	Message string  `json:"message"`
	Type    *string `json:"type"`
}

// ErrorType is the envelope type used for all error replies.
const ErrorType = "error"

// Decode parses a single text frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// Encode serializes an envelope of the given type around an arbitrary payload.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %q payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// NewError builds an error envelope. offendingType may be empty when the
// failing frame had no resolvable type.
func NewError(message, offendingType string) Envelope {
	p := ErrorPayload{Message: message}
	if offendingType != "" {
		p.Type = &offendingType
	}
	raw, _ := json.Marshal(p)
	return Envelope{Type: ErrorType, Payload: raw}
}
