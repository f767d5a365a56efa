// Package queue holds requests that overflowed admission control.
//
// Requests are kept in one FIFO per priority level so that draining is
// priority-descending with submission order preserved inside a level.
package queue

import (
	"sync"

	"github.com/banshee-data/capability-pipeline/internal/inference"
)

// PriorityQueue is a set of per-priority FIFOs. It is safe for concurrent use.
type PriorityQueue struct {
	mu     sync.Mutex
	levels map[inference.Priority][]inference.Request
	size   int
}

// New returns an empty queue.
func New() *PriorityQueue {
	return &PriorityQueue{levels: make(map[inference.Priority][]inference.Request)}
}

// Push appends req to the tail of its priority level. Unknown priorities are
// treated as normal.
func (q *PriorityQueue) Push(req inference.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := req.Priority
	if !p.Valid() {
		p = inference.PriorityNormal
	}
	q.levels[p] = append(q.levels[p], req)
	q.size++
}

// Drain removes and returns up to limit requests, highest priority first and
// FIFO within a priority. A non-positive limit drains nothing.
func (q *PriorityQueue) Drain(limit int) []inference.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || q.size == 0 {
		return nil
	}
	if limit > q.size {
		limit = q.size
	}

	out := make([]inference.Request, 0, limit)
	for _, p := range inference.Priorities {
		level := q.levels[p]
		for len(level) > 0 && len(out) < limit {
			out = append(out, level[0])
			level[0] = inference.Request{}
			level = level[1:]
		}
		if len(level) == 0 {
			delete(q.levels, p)
		} else {
			q.levels[p] = level
		}
		if len(out) == limit {
			break
		}
	}
	q.size -= len(out)
	return out
}

// Remove deletes the request with the given id. It reports whether a request
// was removed.
func (q *PriorityQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p, level := range q.levels {
		for i := range level {
			if level[i].ID != id {
				continue
			}
			rest := make([]inference.Request, 0, len(level)-1)
			rest = append(rest, level[:i]...)
			rest = append(rest, level[i+1:]...)
			if len(rest) == 0 {
				delete(q.levels, p)
			} else {
				q.levels[p] = rest
			}
			q.size--
			return true
		}
	}
	return false
}

// Contains reports whether a request with id is queued.
func (q *PriorityQueue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, level := range q.levels {
		for i := range level {
			if level[i].ID == id {
				return true
			}
		}
	}
	return false
}

// Snapshot returns the queued requests in drain order without removing them.
func (q *PriorityQueue) Snapshot() []inference.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]inference.Request, 0, q.size)
	for _, p := range inference.Priorities {
		out = append(out, q.levels[p]...)
	}
	return out
}

// Len returns the number of queued requests.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Clear empties the queue and returns what was dropped, in drain order.
func (q *PriorityQueue) Clear() []inference.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]inference.Request, 0, q.size)
	for _, p := range inference.Priorities {
		out = append(out, q.levels[p]...)
	}
	q.levels = make(map[inference.Priority][]inference.Request)
	q.size = 0
	return out
}
