package task

import "errors"

var (
	// ErrInvalidArgument is returned for empty or duplicated target sets and
	// for attempts to record a non terminal outcome.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownTarget is returned when an outcome names a charge point the
	// task was never sent to.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrTaskNotFound is returned by the registry for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
)
