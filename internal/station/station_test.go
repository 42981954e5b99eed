package station

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleTransitions(t *testing.T) {
	valid := []struct{ from, to State }{
		{StateNew, StateProvisioned},
		{StateProvisioned, StateActive},
		{StateActive, StateDraining},
		{StateDraining, StateActive},
		{StateDraining, StateTerminated},
		{StateActive, StateKilled},
	}
	for _, tc := range valid {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	invalid := []struct{ from, to State }{
		{StateNew, StateActive},
		{StateActive, StateTerminated},
		{StateTerminated, StateActive},
		{StateKilled, StateActive},
		{StateProvisioned, StateDraining},
	}
	for _, tc := range invalid {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestModeIntervals(t *testing.T) {
	assert.Equal(t, 5*time.Second, ModeEmergency.Interval())
	assert.Equal(t, 30*time.Second, ModeIdle.Interval())
	assert.Equal(t, 900*time.Second, ModeSleep.Interval())
}

type capture struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *capture) last() (string, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.paths) == 0 {
		return "", nil
	}
	return c.paths[len(c.paths)-1], c.bodies[len(c.bodies)-1]
}

func TestTransitionReportsStateChange(t *testing.T) {
	var cap capture
	srv := httptest.NewServer(cap.handler(http.StatusOK))
	defer srv.Close()

	c := NewClient(Config{StationURL: srv.URL, AgentID: "agent-1", AgentKey: "k"})
	require.NoError(t, c.Transition(context.Background(), StateProvisioned, "boot"))

	path, body := cap.last()
	assert.Equal(t, "/api/agents/agent-1/lifecycle", path)
	assert.Equal(t, "STATE_CHANGE", body["event_type"])
	assert.Equal(t, "NEW", body["from_state"])
	assert.Equal(t, "PROVISIONED", body["to_state"])
	assert.Equal(t, "boot", body["reason"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, StateProvisioned, c.State())
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	c := NewClient(Config{StationURL: "http://station.invalid", AgentID: "a"})

	err := c.Transition(context.Background(), StateActive, "skip provisioning")
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StateNew, c.State(), "state unchanged on invalid transition")
}

func TestTransitionSurvivesReportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{StationURL: srv.URL, AgentID: "a"})
	require.NoError(t, c.Transition(context.Background(), StateProvisioned, "boot"))
	assert.Equal(t, StateProvisioned, c.State(), "reporting failures never undo the transition")
}

func TestHeartbeatPrefersCollector(t *testing.T) {
	var collector, stationCap capture
	collectorSrv := httptest.NewServer(collector.handler(http.StatusOK))
	defer collectorSrv.Close()
	stationSrv := httptest.NewServer(stationCap.handler(http.StatusOK))
	defer stationSrv.Close()

	c := NewClient(Config{
		StationURL:   stationSrv.URL,
		CollectorURL: collectorSrv.URL,
		AgentID:      "agent-1",
		AgentName:    "compass",
	})
	c.Heartbeat(context.Background())

	path, body := collector.last()
	assert.Equal(t, "/heartbeat/agent-1", path)
	assert.Equal(t, "IDLE", body["mode"])
	assert.Equal(t, "compass", body["agent_name"])
	assert.Contains(t, body, "uptime_seconds")
	assert.NotContains(t, body, "cpu_percent", "heartbeats are liveness-only")

	_, stationBody := stationCap.last()
	assert.Nil(t, stationBody, "station not contacted when collector succeeds")
	assert.True(t, c.HeartbeatHealthy())
}

func TestHeartbeatFallsBackToStation(t *testing.T) {
	var stationCap capture
	stationSrv := httptest.NewServer(stationCap.handler(http.StatusOK))
	defer stationSrv.Close()

	c := NewClient(Config{
		StationURL:   stationSrv.URL,
		CollectorURL: "http://127.0.0.1:1", // unreachable
		AgentID:      "agent-1",
	})
	c.Heartbeat(context.Background())

	path, _ := stationCap.last()
	assert.Equal(t, "/api/agents/agent-1/heartbeat", path)
	assert.True(t, c.HeartbeatHealthy())
}

func TestThreeHeartbeatFailuresForceEmergency(t *testing.T) {
	c := NewClient(Config{
		StationURL:   "http://127.0.0.1:1",
		CollectorURL: "http://127.0.0.1:1",
		AgentID:      "agent-1",
	})

	for i := 0; i < 2; i++ {
		c.Heartbeat(context.Background())
		assert.Equal(t, ModeIdle, c.Mode())
	}
	c.Heartbeat(context.Background())
	assert.Equal(t, ModeEmergency, c.Mode())
	assert.False(t, c.HeartbeatHealthy())
}

func TestHeartbeatSuccessResetsFailureCount(t *testing.T) {
	var cap capture
	srv := httptest.NewServer(cap.handler(http.StatusOK))
	defer srv.Close()

	c := NewClient(Config{StationURL: "http://127.0.0.1:1", CollectorURL: "http://127.0.0.1:1", AgentID: "a"})
	c.Heartbeat(context.Background())
	c.Heartbeat(context.Background())

	c.cfg.CollectorURL = srv.URL
	c.Heartbeat(context.Background())
	assert.True(t, c.HeartbeatHealthy())
	assert.Equal(t, ModeIdle, c.Mode())
}

func TestReportMetricsShape(t *testing.T) {
	var cap capture
	srv := httptest.NewServer(cap.handler(http.StatusOK))
	defer srv.Close()

	c := NewClient(Config{
		StationURL: srv.URL,
		AgentID:    "agent-1",
		RequestsHandled: func() int64 {
			return 42
		},
		CustomMetrics: func() map[string]float64 {
			return map[string]float64{"queries_total": 7}
		},
	})
	c.ReportMetrics(context.Background())

	path, body := cap.last()
	assert.Equal(t, "/api/agents/agent-1/metrics", path)
	assert.Contains(t, body, "cpu_percent")
	assert.Contains(t, body, "memory_mb")
	assert.Equal(t, 42.0, body["requests_handled"])
	custom, ok := body["custom_metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7.0, custom["queries_total"])
}
