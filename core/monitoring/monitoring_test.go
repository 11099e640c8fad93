package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingMonitor struct {
	mu     sync.Mutex
	errs   []error
	panics []any
	tags   []map[string]string
}

func (m *recordingMonitor) CaptureException(err error, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	m.tags = append(m.tags, tags)
}

func (m *recordingMonitor) CapturePanic(v any, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics = append(m.panics, v)
	m.tags = append(m.tags, tags)
}

func (m *recordingMonitor) Flush(time.Duration) {}

func TestGlobalMonitor(t *testing.T) {
	prev := current
	defer func() { current = prev }()

	rec := &recordingMonitor{}
	Init(rec)
	Init(nil)

	CaptureException(errors.New("boom"), map[string]string{"module": "dispatch"})
	CaptureException(nil, nil)
	CapturePanic("oops", nil)
	CapturePanic(nil, nil)
	Flush(time.Millisecond)

	assert.Len(t, rec.errs, 1)
	assert.Len(t, rec.panics, 1)
	assert.Equal(t, "dispatch", rec.tags[0]["module"])
}

func TestPanicError(t *testing.T) {
	cause := errors.New("nil map")
	assert.ErrorIs(t, PanicError(cause), cause)
	assert.EqualError(t, PanicError(42), "panic: 42")
}
