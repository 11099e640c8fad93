package mqtt

import "errors"

var (
	// ErrPublishFailed is returned when a request could not be published
	// after all retries.
	ErrPublishFailed = errors.New("mqtt publish failed")
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("mqtt not connected")
)
