package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"oneclick/pkg/bus"
	"oneclick/pkg/channel"
	"oneclick/pkg/config"
	"oneclick/pkg/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, adapters ...channel.Adapter) *Service {
	t.Helper()

	svc, err := NewService(config.Default(), router.New(router.WithStepDelay(0)), adapters, slog.Default())
	require.NoError(t, err)
	return svc
}

func serve(t *testing.T, svc *Service, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestIndexServesHTML(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestService(t), http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<html")
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestService(t), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)

	ts, err := time.Parse(timestampLayout, body.TS)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
	assert.Equal(t, byte('Z'), body.TS[len(body.TS)-1])
}

func TestAPIEcho(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	tests := []struct {
		target string
		want   string
	}{
		{target: "/api/echo?q=hello%20world", want: "hello world"},
		{target: "/api/echo", want: ""},
		{target: "/api/echo?q=%D9%85%D8%B1%D8%AD%D8%A8%D8%A7", want: "مرحبا"},
	}

	for _, tt := range tests {
		rec := serve(t, svc, http.MethodGet, tt.target)
		require.Equal(t, http.StatusOK, rec.Code, tt.target)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.want, body["you_said"], tt.target)
		_, err := time.Parse(timestampLayout, body["at"])
		assert.NoError(t, err, tt.target)
	}
}

func TestCORSHeaders(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	newTestService(t).Handler().ServeHTTP(rec, req)

	assert.Contains(t, []string{"*", "https://app.example"}, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestService(t), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestWebSocketPathRejectsPlainGET(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestService(t), http.MethodGet, "/ws")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIsReady(t *testing.T) {
	t.Parallel()

	svc := &Service{channelStates: map[string]channelState{"websocket": {Running: true}}}
	if !svc.isReady() {
		t.Fatal("expected ready with every channel running")
	}

	svc.channelStates["telegram"] = channelState{Running: false, Error: "boom"}
	if svc.isReady() {
		t.Fatal("expected not ready when a channel stopped")
	}

	svc.channelStates = map[string]channelState{}
	if svc.isReady() {
		t.Fatal("expected not ready without channels")
	}
}

func TestReadyzBeforeRun(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestService(t), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Contains(t, body.Channels, "websocket")
}

type collectingSender struct {
	lines []string
	err   error
}

func (s *collectingSender) Send(_ context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.lines = append(s.lines, text)
	return nil
}

func TestHandleInboundPublishesOutcome(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	stream, unsubscribe := svc.Events().Subscribe(context.Background(), 10)
	defer unsubscribe()

	sender := &collectingSender{}
	inbound := bus.InboundMessage{Channel: "websocket", SessionKey: "ws:1", Content: "deploy example.com"}
	require.NoError(t, svc.handleInbound(context.Background(), inbound, sender))
	require.Len(t, sender.lines, 7)

	event := <-stream
	assert.Equal(t, bus.EventIntentRouted, event.Type)
	assert.Equal(t, "deploy", event.Intent)
	assert.Equal(t, 7, event.Messages)
	assert.Equal(t, "ws:1", event.SessionKey)

	failing := &collectingSender{err: channel.NewError(channel.ErrorPeerDisconnected, errors.New("gone"))}
	err := svc.handleInbound(context.Background(), bus.InboundMessage{Channel: "websocket", SessionKey: "ws:1", Content: "hi"}, failing)
	require.True(t, channel.IsPeerDisconnected(err))

	event = <-stream
	assert.Equal(t, bus.EventRouteFailed, event.Type)
	assert.Equal(t, "echo", event.Intent)
	assert.Equal(t, channel.ErrorPeerDisconnected, event.Reason)
}

func TestHandleInboundIgnoresEmptyLine(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	sender := &collectingSender{}
	require.NoError(t, svc.handleInbound(context.Background(), bus.InboundMessage{Content: "  "}, sender))
	assert.Empty(t, sender.lines)
}

func TestNewServiceValidation(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, router.New(), nil, nil)
	require.Error(t, err)

	_, err = NewService(config.Default(), nil, nil, nil)
	require.Error(t, err)
}
