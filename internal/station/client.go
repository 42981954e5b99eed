package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// heartbeatFailureLimit is how many consecutive heartbeat failures force
// the agent into EMERGENCY mode.
const heartbeatFailureLimit = 3

// Config holds control-plane connection settings.
type Config struct {
	// StationURL is the station root, e.g. https://station.example.com.
	StationURL string
	// CollectorURL is the preferred heartbeat sink; empty means heartbeats
	// go straight to the station.
	CollectorURL string
	AgentID      string
	AgentKey     string
	AgentName    string

	// RequestsHandled supplies the served-request count for metrics
	// reports.
	RequestsHandled func() int64
	// CustomMetrics supplies extra gauge values for metrics reports.
	CustomMetrics func() map[string]float64
}

// Client tracks lifecycle state locally and reports it upstream. All
// reporting is best effort: a failed POST is logged and swallowed, never
// propagated to the data path.
type Client struct {
	cfg       Config
	client    *http.Client
	startedAt time.Time

	mu                sync.RWMutex
	state             State
	mode              Mode
	heartbeatFailures int
}

// NewClient creates a control-plane client in state NEW, mode IDLE.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:       cfg,
		client:    &http.Client{Timeout: 10 * time.Second},
		startedAt: time.Now(),
		state:     StateNew,
		mode:      ModeIdle,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Mode returns the current heartbeat mode.
func (c *Client) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Uptime returns time since the client was created.
func (c *Client) Uptime() time.Duration {
	return time.Since(c.startedAt)
}

// HeartbeatHealthy reports whether the agent is below the consecutive
// heartbeat failure limit.
func (c *Client) HeartbeatHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeatFailures < heartbeatFailureLimit
}

// Transition moves the lifecycle state machine and reports the change to
// the station. An invalid move returns ErrInvalidTransition; a reporting
// failure does not undo the local transition.
func (c *Client) Transition(ctx context.Context, to State, reason string) error {
	c.mu.Lock()
	from := c.state
	if !from.CanTransition(to) {
		c.mu.Unlock()
		return &ErrInvalidTransition{From: from, To: to}
	}
	c.state = to
	c.mu.Unlock()

	log.Printf("lifecycle transition %s -> %s (%s)", from, to, reason)

	event := map[string]any{
		"event_type": "STATE_CHANGE",
		"from_state": from,
		"to_state":   to,
		"reason":     reason,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	url := fmt.Sprintf("%s/api/agents/%s/lifecycle", c.cfg.StationURL, c.cfg.AgentID)
	if err := c.post(ctx, url, event); err != nil {
		log.Printf("lifecycle report to station failed: %v", err)
	}
	return nil
}

// SetMode changes the heartbeat cadence.
func (c *Client) SetMode(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != mode {
		log.Printf("heartbeat mode %s -> %s", c.mode, mode)
		c.mode = mode
	}
}

// Heartbeat sends one liveness signal. The body carries mode, uptime and
// the agent name only; resource data travels on the metrics channel. The
// collector is tried first, the station on collector failure. Three
// consecutive failures on both paths force EMERGENCY mode.
func (c *Client) Heartbeat(ctx context.Context) {
	c.mu.RLock()
	mode := c.mode
	c.mu.RUnlock()

	body := map[string]any{
		"mode":           mode,
		"uptime_seconds": int64(c.Uptime().Seconds()),
	}
	if c.cfg.AgentName != "" {
		body["agent_name"] = c.cfg.AgentName
	}

	var err error
	if c.cfg.CollectorURL != "" {
		err = c.post(ctx, fmt.Sprintf("%s/heartbeat/%s", c.cfg.CollectorURL, c.cfg.AgentID), body)
		if err != nil {
			log.Printf("collector heartbeat failed, falling back to station: %v", err)
		}
	} else {
		err = fmt.Errorf("no collector configured")
	}
	if err != nil {
		err = c.post(ctx, fmt.Sprintf("%s/api/agents/%s/heartbeat", c.cfg.StationURL, c.cfg.AgentID), body)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.heartbeatFailures++
		log.Printf("heartbeat failed (%d consecutive): %v", c.heartbeatFailures, err)
		if c.heartbeatFailures >= heartbeatFailureLimit && c.mode != ModeEmergency {
			log.Printf("heartbeat mode %s -> %s", c.mode, ModeEmergency)
			c.mode = ModeEmergency
		}
		return
	}
	c.heartbeatFailures = 0
}

// RunHeartbeat loops until the context ends, re-reading the cadence after
// every beat so mode changes take effect immediately.
func (c *Client) RunHeartbeat(ctx context.Context) {
	for {
		c.Heartbeat(ctx)

		c.mu.RLock()
		interval := c.mode.Interval()
		c.mu.RUnlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (c *Client) post(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AgentKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AgentKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("station returned status %d", resp.StatusCode)
	}
	return nil
}
