package outbox

import (
	"fmt"
	"time"
)

type HealthStatus struct {
	Healthy       bool       `json:"healthy"`
	NATSConnected bool       `json:"nats_connected"`
	Stats         RelayStats `json:"stats"`
	Errors        []string   `json:"errors,omitempty"`
}

// Health reports whether events are flowing. The relay is unhealthy when the
// bus is disconnected or queued events have waited longer than threshold
// since the last successful publish.
func (r *Relay) Health(threshold time.Duration) HealthStatus {
	status := HealthStatus{
		Healthy:       true,
		NATSConnected: true,
		Stats:         r.Stats(),
	}

	if c, ok := r.publisher.(interface{ Connected() bool }); ok && !c.Connected() {
		status.NATSConnected = false
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS disconnected")
	}

	// Alert if too many pending events
	if status.Stats.Pending > r.cfg.BufferSize*9/10 {
		status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", status.Stats.Pending))
	}

	// Check if we haven't published recently (only if we have pending events)
	if status.Stats.Pending > 0 && !status.Stats.LastPublished.IsZero() {
		since := r.cfg.Clock.Since(status.Stats.LastPublished)
		if since > threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events published for %s", since))
		}
	}

	return status
}
