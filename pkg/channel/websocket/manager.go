// Package websocket runs router sessions over WebSocket connections: one
// connection is one session, greeted on open and read line by line until the
// peer goes away.
package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"oneclick/pkg/bus"
	"oneclick/pkg/channel"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

const (
	ChannelName = "websocket"

	defaultWriteTimeout    = 5 * time.Second
	defaultMaxMessageBytes = 64 * 1024
	closeGracePeriod       = time.Second
	messagePreviewLimit    = 240
)

// Options tunes connection handling. Zero values fall back to defaults.
type Options struct {
	AllowedOrigins  []string
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

// Manager accepts WebSocket connections and drives one session per connection.
// Sessions share nothing: each read loop hands the router only its own Session.
type Manager struct {
	upgrader     ws.Upgrader
	handler      channel.Handler
	greeting     string
	writeTimeout time.Duration
	readLimit    int64
	events       *bus.Bus
	log          *slog.Logger
}

// NewManager builds a Manager that greets every session with greeting and
// routes each inbound line through handler.
func NewManager(handler channel.Handler, greeting string, opts Options, events *bus.Bus, log *slog.Logger) (*Manager, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if log == nil {
		log = slog.Default()
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	readLimit := opts.MaxMessageBytes
	if readLimit <= 0 {
		readLimit = defaultMaxMessageBytes
	}

	return &Manager{
		upgrader:     makeUpgrader(opts.AllowedOrigins),
		handler:      handler,
		greeting:     greeting,
		writeTimeout: writeTimeout,
		readLimit:    readLimit,
		events:       events,
		log:          log.With("component", "channel.websocket"),
	}, nil
}

// makeUpgrader creates an upgrader whose origin check honors allowedOrigins.
// An empty list or "*" accepts every origin.
func makeUpgrader(allowedOrigins []string) ws.Upgrader {
	allowAll := len(allowedOrigins) == 0
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		}
		originSet[origin] = struct{}{}
	}

	return ws.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := originSet[origin]
			return ok
		},
	}
}

// ServeHTTP opens a session for the request and blocks until it ends.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, err := m.Open(w, r)
	if err != nil {
		m.log.Warn("Session handshake failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer session.release()

	ctx := r.Context()
	startedAt := time.Now()
	m.log.Info("Session opened", "session_key", session.Key(), "remote_addr", r.RemoteAddr)
	m.events.Publish(ctx, bus.Event{Type: bus.EventSessionOpened, Channel: ChannelName, SessionKey: session.Key()})

	err = m.Run(ctx, session)

	reason := "peer_closed"
	if err != nil {
		reason = channel.CategoryFromError(err)
		m.log.Warn("Session ended on read failure", "session_key", session.Key(), "error", err)
	}
	m.log.Info("Session closed", "session_key", session.Key(), "reason", reason, "duration", time.Since(startedAt))
	m.events.Publish(context.WithoutCancel(ctx), bus.Event{
		Type:       bus.EventSessionClosed,
		Channel:    ChannelName,
		SessionKey: session.Key(),
		Reason:     reason,
		Duration:   time.Since(startedAt),
	})
}

// Open upgrades the request and sends the greeting. Any failure is a
// connection_error and the connection is abandoned.
func (m *Manager) Open(w http.ResponseWriter, r *http.Request) (*Session, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, channel.NewError(channel.ErrorConnection, err)
	}
	conn.SetReadLimit(m.readLimit)

	session := &Session{
		key:          "ws:" + uuid.NewString(),
		conn:         conn,
		writeTimeout: m.writeTimeout,
	}

	if err := session.Send(r.Context(), m.greeting); err != nil {
		session.release()
		return nil, channel.NewError(channel.ErrorConnection, err)
	}

	return session, nil
}

// Run reads lines until the peer disconnects, the context ends, or a read
// fails. Disconnects return nil; other failures return a read_error.
// Each non-empty line is fully routed before the next read.
func (m *Manager) Run(ctx context.Context, session *Session) error {
	stop := context.AfterFunc(ctx, session.shutdown)
	defer stop()

	for {
		messageType, data, err := session.conn.ReadMessage()
		if err != nil {
			return readFailure(ctx, err)
		}
		if messageType != ws.TextMessage {
			m.log.Debug("Ignoring non-text frame", "session_key", session.Key(), "type", messageType)
			continue
		}

		line := strings.TrimSpace(string(data))
		if line == "" {
			continue
		}

		m.log.Debug("Received line", "session_key", session.Key(), "content", previewText(line))
		inbound := bus.InboundMessage{Channel: ChannelName, SessionKey: session.Key(), Content: line}
		if err := m.handler(ctx, inbound, session); err != nil {
			if channel.IsPeerDisconnected(err) {
				return nil
			}
			return err
		}
	}
}

// readFailure classifies a ReadMessage error. Close frames of any code,
// dropped connections and reads interrupted by shutdown are disconnects.
func readFailure(ctx context.Context, err error) error {
	var closeErr *ws.CloseError
	switch {
	case errors.As(err, &closeErr), ctx.Err() != nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed), errors.Is(err, syscall.ECONNRESET):
		return nil
	}

	return channel.NewError(channel.ErrorRead, err)
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	if len(text) <= messagePreviewLimit {
		return text
	}

	return text[:messagePreviewLimit] + "..."
}
