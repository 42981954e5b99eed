package station

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// MetricsInterval is how often the resource report runs.
const MetricsIntervalSeconds = 60

// ReportMetrics posts one resource snapshot to the station. This is the
// only channel that carries resource data; heartbeats stay liveness-only.
// Failures are logged and swallowed.
func (c *Client) ReportMetrics(ctx context.Context) {
	body := map[string]any{
		"cpu_percent":      0.0,
		"memory_mb":        0.0,
		"requests_handled": int64(0),
		"custom_metrics":   map[string]float64{},
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			body["cpu_percent"] = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			body["memory_mb"] = float64(mem.RSS) / (1024 * 1024)
		}
	}

	if c.cfg.RequestsHandled != nil {
		body["requests_handled"] = c.cfg.RequestsHandled()
	}
	if c.cfg.CustomMetrics != nil {
		if custom := c.cfg.CustomMetrics(); custom != nil {
			body["custom_metrics"] = custom
		}
	}

	url := fmt.Sprintf("%s/api/agents/%s/metrics", c.cfg.StationURL, c.cfg.AgentID)
	if err := c.post(ctx, url, body); err != nil {
		log.Printf("metrics report to station failed: %v", err)
	}
}
