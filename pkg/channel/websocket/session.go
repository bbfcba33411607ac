package websocket

import (
	"context"
	"sync"
	"time"

	"oneclick/pkg/channel"

	ws "github.com/gorilla/websocket"
)

// Session is one open WebSocket channel. Send is only called from the
// session's own goroutine; shutdown may run concurrently with it.
type Session struct {
	key          string
	conn         *ws.Conn
	writeTimeout time.Duration

	closed    bool
	closeOnce sync.Once
}

// Key identifies the session in logs and events.
func (s *Session) Key() string {
	return s.key
}

// Send writes one text frame. Once a write fails the session is treated as
// disconnected and every later Send fails fast.
func (s *Session) Send(ctx context.Context, text string) error {
	if s.closed {
		return channel.ErrPeerDisconnected
	}
	if err := ctx.Err(); err != nil {
		return channel.NewError(channel.ErrorPeerDisconnected, err)
	}

	deadline := time.Now().Add(s.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		s.closed = true
		return channel.NewError(channel.ErrorPeerDisconnected, err)
	}
	if err := s.conn.WriteMessage(ws.TextMessage, []byte(text)); err != nil {
		s.closed = true
		return channel.NewError(channel.ErrorPeerDisconnected, err)
	}

	return nil
}

// shutdown tells the peer the server is going away and unblocks any read.
func (s *Session) shutdown() {
	_ = s.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseGoingAway, "server shutting down"),
		time.Now().Add(closeGracePeriod),
	)
	s.release()
}

func (s *Session) release() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}
