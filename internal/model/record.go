// Package model defines the canonical indicator record and the shared types
// exchanged between the resolver, normalizer, store, and auditor.
package model

import "fmt"

// DerivedSource is the provenance tag for values computed from stored series
// (per-capita ratios, growth rates). It is never attached to raw official data.
const DerivedSource = "CALCULADO"

// DerivedRank is the priority rank assigned to derived records. It sits below
// every configurable chain position so a calculated value can never displace
// an official observation for the same period.
const DerivedRank = 99

// Period identifies an observation period. Month is 0 for annual series.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

// Before reports whether p precedes q in calendar order.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

func (p Period) String() string {
	if p.Month == 0 {
		return fmt.Sprintf("%04d", p.Year)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Record is the canonical indicator observation. The natural key is
// (municipality_code, indicator_key, source, year, month); the store enforces
// at most one row per key.
//
// Value is nil only for a tombstone: a record explicitly marking the period as
// confirmed unavailable at the source. The pipeline never writes a guessed
// number in place of a missing one.
type Record struct {
	MunicipalityCode string   `json:"municipality_code"`
	IndicatorKey     string   `json:"indicator_key"`
	Source           string   `json:"source"`
	Period           Period   `json:"period"`
	Value            *float64 `json:"value"`
	Unit             string   `json:"unit"`
	PriorityRank     int      `json:"priority_rank"`
}

// Tombstone reports whether the record marks a confirmed-unavailable period.
func (r Record) Tombstone() bool {
	return r.Value == nil
}

// Key renders the natural key, used in log lines and conflict messages.
func (r Record) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s", r.MunicipalityCode, r.IndicatorKey, r.Source, r.Period)
}

// UpsertResult summarizes one store upsert batch.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Rejected int `json:"rejected"`
}

// Add accumulates another result into r.
func (r *UpsertResult) Add(o UpsertResult) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Rejected += o.Rejected
}

// Float returns a pointer to v, for building Record values.
func Float(v float64) *float64 {
	return &v
}
