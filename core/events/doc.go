// Package events defines the operation events emitted on the event bus.
//
// Available event types:
//   - OperationStarted: an operation was accepted and its calls submitted
//   - OutcomeRecorded: one charge point reached a terminal outcome
//   - OperationCompleted: every charge point of an operation is terminal
package events
