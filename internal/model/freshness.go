package model

// FreshnessStatus classifies an indicator's recency.
type FreshnessStatus string

const (
	FreshnessCurrent FreshnessStatus = "current"
	FreshnessStale   FreshnessStatus = "stale"
)

// LastObservation is the store's read model for the auditor: the most recent
// stored period per (indicator, source) pair.
type LastObservation struct {
	IndicatorKey string `json:"indicator_key"`
	Source       string `json:"source"`
	PriorityRank int    `json:"priority_rank"`
	LastPeriod   Period `json:"last_period"`
}

// IndicatorFreshness is the auditor's verdict for one indicator.
type IndicatorFreshness struct {
	IndicatorKey   string          `json:"indicator_key"`
	Source         string          `json:"source"`
	Category       string          `json:"category"`
	LastPeriod     Period          `json:"last_period"`
	ThresholdYears int             `json:"threshold_years"`
	Status         FreshnessStatus `json:"status"`
}
