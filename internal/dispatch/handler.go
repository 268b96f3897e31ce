package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/nfrund/tickstream/internal/session"
)

// Handler processes one decoded envelope payload on behalf of a session.
// A nil result suppresses the reply even when the operation declares one.
type Handler interface {
	Invoke(ctx context.Context, sess *session.Session, payload json.RawMessage) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, sess *session.Session, payload json.RawMessage) (any, error)

// Invoke implements Handler.
func (f HandlerFunc) Invoke(ctx context.Context, sess *session.Session, payload json.RawMessage) (any, error) {
	return f(ctx, sess, payload)
}

// ClientError carries a message that is safe to echo back to the peer.
// Any other handler error is logged server-side and surfaced as a generic
// message, so internal details never leak onto the wire.
type ClientError struct {
	Message string
}

// Error implements the error interface.
func (e *ClientError) Error() string { return e.Message }

// Errorf builds a ClientError from a format string.
func Errorf(format string, args ...any) *ClientError {
	return &ClientError{Message: fmt.Sprintf(format, args...)}
}

// validate is shared across handlers; the validator is safe for concurrent
// use and caches struct metadata.
var validate = validator.New()

// Nullary wraps a handler that takes no payload.
func Nullary(fn func(ctx context.Context) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, _ *session.Session, _ json.RawMessage) (any, error) {
		return fn(ctx)
	})
}

// Typed wraps a handler that receives the decoded payload only. The payload
// is unmarshalled into Req and, for struct types, checked against its
// validate tags before the handler runs.
func Typed[Req any](fn func(ctx context.Context, req Req) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, _ *session.Session, payload json.RawMessage) (any, error) {
		req, err := decodePayload[Req](payload)
		if err != nil {
			return nil, err
		}
		return fn(ctx, req)
	})
}

// WithSession wraps a handler that receives the decoded payload and the
// originating session.
func WithSession[Req any](fn func(ctx context.Context, sess *session.Session, req Req) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, sess *session.Session, payload json.RawMessage) (any, error) {
		req, err := decodePayload[Req](payload)
		if err != nil {
			return nil, err
		}
		return fn(ctx, sess, req)
	})
}

// decodePayload unmarshals and validates the payload for a typed handler.
// Decode and validation failures are protocol errors, reported to the peer.
func decodePayload[Req any](payload json.RawMessage) (Req, error) {
	var req Req
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return req, Errorf("invalid payload: %v", err)
		}
	}

	if isStruct(req) {
		if err := validate.Struct(req); err != nil {
			return req, Errorf("invalid payload: %v", err)
		}
	}
	return req, nil
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}
