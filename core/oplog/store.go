// Package oplog persists a summary of every completed operation so operators
// can look up past fleet commands after the in-memory task was reaped.
package oplog

import (
	"context"
	"slices"
	"time"
)

// TargetResult is the final outcome of one charge point.
type TargetResult struct {
	ChargeBoxID string `json:"charge_box_id"`
	Outcome     string `json:"outcome"`
	Value       string `json:"value,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Record summarizes one operation.
type Record struct {
	Timestamp    time.Time      `json:"timestamp"`
	TaskID       string         `json:"task_id"`
	Action       string         `json:"action"`
	ChargeBoxIDs []string       `json:"charge_box_ids"`
	Results      []TargetResult `json:"results"`
	Complete     bool           `json:"complete"`
	Duration     time.Duration  `json:"duration"`
}

// Query filters records. Zero values match everything.
type Query struct {
	Start       time.Time
	End         time.Time
	ChargeBoxID string
	Action      string
}

// Match reports whether r satisfies q.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Action != "" && r.Action != q.Action {
		return false
	}
	if q.ChargeBoxID != "" && !slices.Contains(r.ChargeBoxIDs, q.ChargeBoxID) {
		return false
	}
	return true
}

// Store persists operation records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
