package dispatch

import "sync"

// callQueue is an unbounded FIFO of pending calls shared by all workers.
type callQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*job
	closed bool
}

func newCallQueue() *callQueue {
	q := &callQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *callQueue) push(jobs ...*job) {
	q.mu.Lock()
	q.items = append(q.items, jobs...)
	n := len(q.items)
	q.mu.Unlock()
	queueDepth.Set(float64(n))
	q.cond.Broadcast()
}

// pop blocks until a call is available. ok is false once the queue is closed
// and empty.
func (q *callQueue) pop() (j *job, ok bool) {
	q.mu.Lock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	j = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	n := len(q.items)
	q.mu.Unlock()
	queueDepth.Set(float64(n))
	return j, true
}

// close wakes every waiting worker. Queued calls are still handed out.
func (q *callQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// drain removes and returns every queued call.
func (q *callQueue) drain() []*job {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	queueDepth.Set(0)
	return items
}

func (q *callQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
