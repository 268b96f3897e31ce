package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/tickstream/internal/session"
)

// wsTransport adapts a coder/websocket connection to the session transport.
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// Read returns the next text frame. Clean peer closes are reported as
// session.ErrPeerClosed so the dispatch loop records a normal close.
func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, io.EOF) {
			return nil, session.ErrPeerClosed
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

// Close sends a normal closure. Closing an already-closed connection is not
// an error worth surfacing.
func (t *wsTransport) Close() error {
	_ = t.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

// handleWS upgrades the request and serves the session until it ends. The
// dispatch loop runs on the request goroutine; replies and fan-out pushes
// are serialized by the session.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// In production, check the Origin header here.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade failed")
	}

	sess := session.New(newWSTransport(conn))
	s.Roster.Add(sess)
	sess.OnDisconnect(func() {
		// Leaving the roster is what excludes this session from fan-out.
		// Topic refcounts are only released by unsubscribe, so a session
		// that drops while still subscribed leaves its topics producing.
		// TODO: decrement this session's topic refcounts here so abandoned
		// topics stop their generators.
		s.Roster.Remove(sess.ID())
	})

	s.loop.Serve(c.Request().Context(), sess)
	return nil
}
