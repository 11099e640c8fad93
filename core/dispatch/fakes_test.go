package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/ocppfleet/core/oplog"
)

// scriptedGateway answers each charge point with a scripted reply. Charge
// points without a script never answer.
type scriptedGateway struct {
	mu      sync.Mutex
	replies map[string]func(Handler)
	sendErr map[string]error
	sent    []Request
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{replies: map[string]func(Handler){}, sendErr: map[string]error{}}
}

func (g *scriptedGateway) reply(cb string, fn func(Handler)) *scriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[cb] = fn
	return g
}

func (g *scriptedGateway) fail(cb string, err error) *scriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendErr[cb] = err
	return g
}

func (g *scriptedGateway) Send(_ context.Context, req Request, h Handler) error {
	g.mu.Lock()
	g.sent = append(g.sent, req)
	err := g.sendErr[req.ChargeBoxID]
	fn := g.replies[req.ChargeBoxID]
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if fn != nil {
		go fn(h)
	}
	return nil
}

func (g *scriptedGateway) requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Request(nil), g.sent...)
}

// pendingCall is a request captured by capturingGateway.
type pendingCall struct {
	req Request
	h   Handler
}

// capturingGateway hands every request to the test instead of answering.
type capturingGateway struct {
	calls chan pendingCall
}

func newCapturingGateway() *capturingGateway {
	return &capturingGateway{calls: make(chan pendingCall, 256)}
}

func (g *capturingGateway) Send(_ context.Context, req Request, h Handler) error {
	g.calls <- pendingCall{req: req, h: h}
	return nil
}

// recordLogger keeps structured warnings for assertions.
type recordLogger struct {
	mu    sync.Mutex
	warns []string
	infos []string
	meta  []map[string]any
}

func (l *recordLogger) Debugf(string, ...any)         {}
func (l *recordLogger) Debugw(string, map[string]any) {}
func (l *recordLogger) Infof(f string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(f, args...))
}
func (l *recordLogger) Infow(msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
	l.meta = append(l.meta, fields)
}
func (l *recordLogger) Warnf(f string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(f, args...))
}
func (l *recordLogger) Warnw(msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
	l.meta = append(l.meta, fields)
}
func (l *recordLogger) Errorf(string, ...any) {}

// killedFields returns the fields of the forced shutdown warning.
func (l *recordLogger) killedFields() (map[string]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.meta {
		if _, ok := m["killed"]; ok {
			return m, true
		}
	}
	return nil, false
}

// memoryStore is an in-memory oplog.Store.
type memoryStore struct {
	mu   sync.Mutex
	recs []oplog.Record
}

func (s *memoryStore) Append(_ context.Context, rec oplog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memoryStore) Query(_ context.Context, q oplog.Query) ([]oplog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []oplog.Record
	for _, r := range s.recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) records() []oplog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]oplog.Record(nil), s.recs...)
}
