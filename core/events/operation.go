package events

import (
	"time"

	"github.com/kilianp07/ocppfleet/core/task"
)

// OperationStarted is published once the calls of an operation are queued.
type OperationStarted struct {
	TaskID       task.ID
	Action       string
	ChargeBoxIDs []string
}

// OutcomeRecorded is published for each terminal outcome that was applied.
// Latency is measured from submission of the call.
type OutcomeRecorded struct {
	TaskID      task.ID
	Action      string
	ChargeBoxID string
	Outcome     task.Outcome
	Latency     time.Duration
}

// OperationCompleted is published when the last charge point resolves.
type OperationCompleted struct {
	TaskID   task.ID
	Action   string
	Counts   map[task.OutcomeKind]int
	Duration time.Duration
}
