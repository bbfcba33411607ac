package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"oneclick/pkg/bus"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !labelsMatch(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		want, ok := labels[pair.GetName()]
		if !ok {
			continue
		}
		if want != pair.GetValue() {
			return false
		}
		matched++
	}
	return matched == len(labels)
}

func TestObserveSessionLifecycle(t *testing.T) {
	m := New()

	m.Observe(bus.Event{Type: bus.EventSessionOpened, Channel: "websocket"})
	m.Observe(bus.Event{Type: bus.EventSessionOpened, Channel: "websocket"})
	m.Observe(bus.Event{Type: bus.EventSessionClosed, Channel: "websocket", Reason: "peer_closed", Duration: 3 * time.Second})

	ws := map[string]string{"channel": "websocket"}
	assert.Equal(t, float64(1), metricValue(t, m, "oneclick_sessions_active", ws))
	assert.Equal(t, float64(2), metricValue(t, m, "oneclick_sessions_opened_total", ws))
	assert.Equal(t, float64(1), metricValue(t, m, "oneclick_sessions_closed_total", map[string]string{"channel": "websocket", "reason": "peer_closed"}))
	assert.Equal(t, float64(1), metricValue(t, m, "oneclick_session_duration_seconds", ws))
}

func TestObserveIntents(t *testing.T) {
	m := New()

	m.Observe(bus.Event{Type: bus.EventIntentRouted, Channel: "websocket", Intent: "deploy", Messages: 7})
	m.Observe(bus.Event{Type: bus.EventIntentRouted, Channel: "websocket", Intent: "echo", Messages: 1})
	m.Observe(bus.Event{Type: bus.EventRouteFailed, Channel: "websocket", Intent: "deploy", Messages: 3})

	deploy := map[string]string{"channel": "websocket", "intent": "deploy"}
	assert.Equal(t, float64(2), metricValue(t, m, "oneclick_intents_total", deploy))
	assert.Equal(t, float64(1), metricValue(t, m, "oneclick_route_failures_total", deploy))
	assert.Equal(t, float64(11), metricValue(t, m, "oneclick_messages_sent_total", map[string]string{"channel": "websocket"}))
}

func TestRunConsumesBus(t *testing.T) {
	m := New()
	events := bus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx, events)
		close(done)
	}()

	ws := map[string]string{"channel": "websocket"}
	require.Eventually(t, func() bool {
		events.Publish(ctx, bus.Event{Type: bus.EventSessionOpened, Channel: "websocket"})
		return metricValue(t, m, "oneclick_sessions_opened_total", ws) > 0
	}, time.Second, 10*time.Millisecond)

	events.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after bus close")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.Observe(bus.Event{Type: bus.EventIntentRouted, Channel: "websocket", Intent: "echo", Messages: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `oneclick_intents_total{channel="websocket",intent="echo"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
