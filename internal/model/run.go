package model

import "time"

// RunStatus tracks a pipeline run's lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Report     *RunReport `json:"report,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IndicatorResult records the outcome of one indicator's resolution within a run.
type IndicatorResult struct {
	IndicatorKey string `json:"indicator_key"`
	// Source is the adapter identity that served the payload; empty when the
	// whole chain came up empty.
	Source   string       `json:"source,omitempty"`
	Gap      bool         `json:"gap,omitempty"` // chain exhausted, no data available
	Rows     int          `json:"rows"`          // raw rows received from the source
	Dropped  int          `json:"dropped"`       // rows rejected by the normalizer
	Upserted UpsertResult `json:"upserted"`
	Error    string       `json:"error,omitempty"`
}

// RunReport is the aggregate outcome of a pipeline run. Indicators whose
// chains were exhausted appear under Gaps; they are reported, never filled in.
type RunReport struct {
	Results    []IndicatorResult `json:"results"`
	Served     int               `json:"served"`
	Gaps       int               `json:"gaps"`
	Failed     int               `json:"failed"`
	DurationMS int64             `json:"duration_ms"`
}
