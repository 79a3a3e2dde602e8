package health

import (
	"math"
	"time"

	"github.com/taskwatch/taskwatch/internal/store"
)

// Snapshot is the health view of one client as exposed to dashboards.
type Snapshot struct {
	LastCheckAt         *time.Time `json:"lastCheckAt"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt"`
	LastFailureAt       *time.Time `json:"lastFailureAt"`
	LastLatencyMs       *int64     `json:"lastLatencyMs"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	SuccessCount        int        `json:"successCount"`
	FailureCount        int        `json:"failureCount"`
	SuccessRate         *float64   `json:"successRate"`
	LastError           *string    `json:"lastError"`
}

// ComputeSnapshot derives a Snapshot from a client record. SuccessRate is
// nil until at least one check has run.
func ComputeSnapshot(c store.Client) Snapshot {
	var rate *float64
	if total := c.SuccessCount + c.FailureCount; total > 0 {
		r := math.Round(float64(c.SuccessCount)/float64(total)*10000) / 100
		rate = &r
	}
	return Snapshot{
		LastCheckAt:         c.LastCheckAt,
		LastSuccessAt:       c.LastSuccessAt,
		LastFailureAt:       c.LastFailureAt,
		LastLatencyMs:       c.LastLatencyMs,
		ConsecutiveFailures: c.ConsecutiveFailures,
		SuccessCount:        c.SuccessCount,
		FailureCount:        c.FailureCount,
		SuccessRate:         rate,
		LastError:           c.LastError,
	}
}
