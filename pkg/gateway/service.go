package gateway

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"oneclick/pkg/bus"
	"oneclick/pkg/channel"
	"oneclick/pkg/channel/websocket"
	"oneclick/pkg/config"
	"oneclick/pkg/metrics"
	"oneclick/pkg/router"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second

	// timestampLayout renders UTC instants as ISO-8601 with a Z suffix.
	timestampLayout = "2006-01-02T15:04:05.000000Z"
)

//go:embed static/index.html
var indexHTML []byte

// Service owns the single HTTP listener and every channel feeding the router.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	router   *router.Router
	manager  *websocket.Manager
	channels []channel.Adapter
	events   *bus.Bus
	metrics  *metrics.Metrics

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
}

type healthResponse struct {
	Status string `json:"status"`
	TS     string `json:"ts"`
}

type echoResponse struct {
	YouSaid string `json:"you_said"`
	At      string `json:"at"`
}

// NewService wires the WebSocket channel and any extra adapters to r.
func NewService(cfg *config.Config, r *router.Router, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if r == nil {
		return nil, errors.New("router is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:      cfg,
		log:      log.With("component", "gateway.service"),
		router:   r,
		channels: adapters,
		events:   bus.New(),
		metrics:  metrics.New(),
	}

	manager, err := websocket.NewManager(s.handleInbound, r.Greeting(), websocket.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	}, s.events, log)
	if err != nil {
		return nil, fmt.Errorf("initialize websocket channel: %w", err)
	}
	s.manager = manager

	s.channelStates = make(map[string]channelState, len(adapters)+1)
	s.channelStates[websocket.ChannelName] = channelState{}
	for _, adapter := range adapters {
		s.channelStates[adapter.Name()] = channelState{}
	}

	return s, nil
}

// Events exposes the session event stream.
func (s *Service) Events() *bus.Bus {
	return s.events
}

// Run serves HTTP and every adapter until ctx is done or one of them fails.
// Shutdown cancels every open session.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.events.Close()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	go s.metrics.Run(ctx, s.events)

	addr := s.cfg.Server.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		// Hijacked WebSocket connections are not tracked by Shutdown; deriving
		// request contexts from ctx is what ends their sessions.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	serverErrors := make(chan error, 1)
	s.setChannelState(websocket.ChannelName, channelState{Running: true})
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.setChannelState(websocket.ChannelName, channelState{Running: false, Error: errorString(err)})
		if err != nil {
			serverErrors <- fmt.Errorf("serve http: %w", err)
		}
	}()
	s.log.Info("Gateway listening", "address", listener.Addr().String(), "ws_path", s.cfg.Server.WSPath)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	case runErr = <-errCh:
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Gateway shutdown incomplete", "error", err)
	}
	s.log.Info("Gateway stopped")

	return runErr
}

// Handler builds the HTTP routes served on the gateway listener.
func (s *Service) Handler() http.Handler {
	return newRouter(s)
}

// handleInbound routes one session line and reports the outcome on the bus.
func (s *Service) handleInbound(ctx context.Context, inbound bus.InboundMessage, sender channel.Sender) error {
	intent := router.Classify(inbound.Content)
	if intent.Kind == router.KindEmpty {
		return nil
	}

	startedAt := time.Now()
	sent, err := s.router.Dispatch(ctx, intent, sender)

	event := bus.Event{
		Type:       bus.EventIntentRouted,
		Channel:    inbound.Channel,
		SessionKey: inbound.SessionKey,
		Intent:     intent.Kind.String(),
		Messages:   sent,
		Duration:   time.Since(startedAt),
	}
	if err != nil {
		event.Type = bus.EventRouteFailed
		event.Reason = channel.CategoryFromError(err)
		event.Error = err.Error()
		s.log.Debug("Route cut short", "session_key", inbound.SessionKey, "intent", event.Intent, "sent", sent, "error", err)
	}
	s.events.Publish(context.WithoutCancel(ctx), event)

	return err
}

func (s *Service) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		s.log.Debug("Failed to write index page", "error", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", TS: timestamp(time.Now())})
}

func (s *Service) handleEcho(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, echoResponse{
		YouSaid: r.URL.Query().Get("q"),
		At:      timestamp(time.Now()),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write JSON response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      channels,
	}
}

// isReady reports whether every channel is running.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.channelStates) == 0 {
		return false
	}

	for _, state := range s.channelStates {
		if !state.Running {
			return false
		}
	}

	return true
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
