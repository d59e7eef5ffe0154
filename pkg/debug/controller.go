package debug

import (
	"context"
	"sync"
)

// Controller parks the rendering goroutine at each pause until a host
// goroutine calls Resume. Use Handler as the session's pause handler.
type Controller struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current *DebugBreakpoint
	action  Action
	resumed bool
	closed  bool
	pauses  chan DebugBreakpoint
}

// NewController creates a controller. Pause notifications are buffered;
// a host that does not read them can poll Paused instead.
func NewController() *Controller {
	c := &Controller{pauses: make(chan DebugBreakpoint, 16)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Pauses delivers every pause as it happens.
func (c *Controller) Pauses() <-chan DebugBreakpoint { return c.pauses }

// Handler returns a pause handler that blocks until Resume, Close or ctx
// cancellation. Cancellation and Close resume with STOP.
func (c *Controller) Handler(ctx context.Context) Handler {
	return func(bp DebugBreakpoint) Action {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ActionStop
		}
		c.current = &bp
		c.resumed = false
		c.mu.Unlock()

		select {
		case c.pauses <- bp:
		default:
		}

		stop := context.AfterFunc(ctx, func() {
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		})
		defer stop()

		c.mu.Lock()
		defer c.mu.Unlock()
		for !c.resumed && !c.closed && ctx.Err() == nil {
			c.cond.Wait()
		}
		c.current = nil
		if !c.resumed {
			return ActionStop
		}
		return c.action
	}
}

// Paused returns the pending pause, if execution is parked.
func (c *Controller) Paused() (DebugBreakpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return DebugBreakpoint{}, false
	}
	return *c.current, true
}

// Resume releases a parked render with action. It reports false when no
// render is paused.
func (c *Controller) Resume(action Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.resumed {
		return false
	}
	c.action = action
	c.resumed = true
	c.cond.Broadcast()
	return true
}

// Close stops a parked render and makes every later pause return STOP.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}
