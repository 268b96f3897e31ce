package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nfrund/tickstream/internal/session"
	"github.com/nfrund/tickstream/internal/wire"
)

// CloseReason is the terminal state of a connection's serving loop.
type CloseReason string

const (
	// CloseNormal means the peer or the server ended the session cleanly.
	CloseNormal CloseReason = "normal"
	// CloseTimeout means no frame arrived within the configured idle window.
	CloseTimeout CloseReason = "timeout"
	// CloseError means the transport failed mid-session.
	CloseError CloseReason = "error"
)

// Loop serves one connection: it reads envelopes, resolves operations,
// invokes handlers and writes replies. Per-message failures are reported to
// the peer and the loop continues; only timeouts and transport failures end
// the session.
type Loop struct {
	registry *Registry
	// idleTimeout bounds the wait for the next inbound frame. Zero disables
	// the idle check.
	idleTimeout time.Duration
}

// NewLoop builds a serving loop over the given registry.
func NewLoop(reg *Registry, idleTimeout time.Duration) *Loop {
	return &Loop{registry: reg, idleTimeout: idleTimeout}
}

// Serve runs the dispatch loop until a terminal condition, then closes the
// session (which cancels connection-scoped tasks and runs disconnect hooks).
// It returns the reason the session ended.
func (l *Loop) Serve(ctx context.Context, sess *session.Session) CloseReason {
	reason := l.serve(ctx, sess)

	if err := sess.Close(); err != nil {
		slog.Debug("Session close after serve", "sessionID", sess.ID(), "error", err)
	}
	slog.Info("Session ended", "sessionID", sess.ID(), "reason", string(reason))
	return reason
}

func (l *Loop) serve(ctx context.Context, sess *session.Session) CloseReason {
	for {
		frame, err := l.readFrame(ctx, sess)
		if err != nil {
			return l.classify(ctx, sess, err)
		}
		l.handleFrame(ctx, sess, frame)
	}
}

func (l *Loop) readFrame(ctx context.Context, sess *session.Session) ([]byte, error) {
	if l.idleTimeout <= 0 {
		return sess.Read(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, l.idleTimeout)
	defer cancel()
	return sess.Read(readCtx)
}

func (l *Loop) classify(ctx context.Context, sess *session.Session, err error) CloseReason {
	switch {
	case ctx.Err() != nil:
		// Server-initiated shutdown.
		return CloseNormal
	case errors.Is(err, context.DeadlineExceeded):
		slog.Info("Closing idle session", "sessionID", sess.ID(), "idleTimeout", l.idleTimeout)
		return CloseTimeout
	case errors.Is(err, session.ErrPeerClosed), errors.Is(err, io.EOF):
		return CloseNormal
	default:
		slog.Warn("Session transport error", "sessionID", sess.ID(), "error", err)
		return CloseError
	}
}

// handleFrame processes a single inbound frame. Every failure path replies
// with an error envelope and returns; none of them are fatal to the loop.
func (l *Loop) handleFrame(ctx context.Context, sess *session.Session, frame []byte) {
	env, err := wire.Decode(frame)
	if err != nil {
		slog.Debug("Rejecting malformed frame", "sessionID", sess.ID(), "error", err)
		l.sendError(sess, "malformed message envelope", "")
		return
	}

	op, ok := l.registry.Get(env.Type)
	if !ok {
		l.sendError(sess, "unknown operation type: "+env.Type, env.Type)
		return
	}

	result, err := l.invoke(ctx, sess, op, env.Payload)
	if err != nil {
		l.sendError(sess, clientMessage(sess, env.Type, err), env.Type)
		return
	}

	if op.Reply == "" || result == nil {
		return
	}
	if err := sess.Send(op.Reply, result); err != nil {
		slog.Warn("Failed to send reply", "sessionID", sess.ID(), "operation", env.Type, "error", err)
	}
}

// invoke runs the handler, converting panics into errors so one failing
// message cannot sever a long-lived session.
func (l *Loop) invoke(ctx context.Context, sess *session.Session, op Operation, payload []byte) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %q panicked: %v", op.Name, r)
		}
	}()
	return op.Handler.Invoke(ctx, sess, payload)
}

// clientMessage decides what the peer is allowed to see. Only ClientError
// text crosses the wire; everything else is logged with full detail and
// replaced with a generic message.
func clientMessage(sess *session.Session, opType string, err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Message
	}
	slog.Error("Operation handler failed", "sessionID", sess.ID(), "operation", opType, "error", err)
	return "internal error"
}

func (l *Loop) sendError(sess *session.Session, message, offendingType string) {
	env := wire.NewError(message, offendingType)
	if err := sess.SendEnvelope(env); err != nil {
		slog.Debug("Failed to send error reply", "sessionID", sess.ID(), "error", err)
	}
}
