package dispatch

import "errors"

var (
	// ErrExecutorClosed is returned by Submit once shutdown has started.
	ErrExecutorClosed = errors.New("executor closed")
	// ErrShutdownForced is returned by Shutdown when calls had to be abandoned.
	ErrShutdownForced = errors.New("shutdown forced")
	// ErrUnsupportedAction is returned for actions without a translation rule.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// abandonReason is recorded for calls still unresolved at forced shutdown.
const abandonReason = "abandoned: executor shut down"
