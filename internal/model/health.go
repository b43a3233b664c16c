package model

import "time"

// HealthRecord is the last known availability of a source adapter.
type HealthRecord struct {
	SourceName          string    `json:"source_name"`
	IsOnline            bool      `json:"is_online"`
	LatencyMs           int64     `json:"latency_ms"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	CheckedAt           time.Time `json:"checked_at"`
}

// HealthStatus aggregates all source records.
type HealthStatus struct {
	Healthy bool           `json:"healthy"`
	Sources []HealthRecord `json:"sources"`
}
