// Package admission bounds the number of detections executing at once.
package admission

import "sync/atomic"

// Controller tracks in-flight work against a fixed ceiling. All methods are
// safe for concurrent use.
type Controller struct {
	active   atomic.Int64
	capacity int64
}

// New returns a controller admitting at most capacity concurrent requests.
// Capacity below one is raised to one.
func New(capacity int) *Controller {
	if capacity < 1 {
		capacity = 1
	}
	return &Controller{capacity: int64(capacity)}
}

// TryAdmit reserves a slot. It returns false when the controller is full, in
// which case the caller must queue or reject the request.
func (c *Controller) TryAdmit() bool {
	for {
		cur := c.active.Load()
		if cur >= c.capacity {
			return false
		}
		if c.active.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees a slot taken by TryAdmit. It must be called exactly once per
// successful admission, on success and failure paths alike. Extra releases
// are ignored rather than driving the count negative.
func (c *Controller) Release() {
	for {
		cur := c.active.Load()
		if cur <= 0 {
			return
		}
		if c.active.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Active returns the number of held slots.
func (c *Controller) Active() int { return int(c.active.Load()) }

// Capacity returns the ceiling.
func (c *Controller) Capacity() int { return int(c.capacity) }

// Available returns the number of free slots.
func (c *Controller) Available() int {
	free := c.capacity - c.active.Load()
	if free < 0 {
		return 0
	}
	return int(free)
}
