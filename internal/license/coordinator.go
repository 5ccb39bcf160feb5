package license

import (
	"context"
	"sync"
)

// Coordinator serializes license checks across a process. It is a
// single-admission gate, not a queue: while one check is in flight,
// further callers return immediately without running their function,
// trusting the in-flight check to leave the process-shared token in a
// valid state. Callers therefore must not assume a returned-nil check
// actually completed a server round-trip.
type Coordinator struct {
	mu       sync.Mutex
	checking bool
}

// NewCoordinator creates a coordinator. One instance should be shared by
// everything that checks the same held license; pass it explicitly
// rather than reaching for a package-level singleton.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Do runs fn unless another check is already in flight, in which case it
// returns nil immediately. The internal lock is held only for the
// admission decision, never across fn, so bystanders are not blocked on
// network I/O. The in-flight flag is reset even when fn fails.
func (c *Coordinator) Do(ctx context.Context, fn func(context.Context) error) error {
	c.mu.Lock()
	if c.checking {
		c.mu.Unlock()
		return nil
	}
	c.checking = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.checking = false
		c.mu.Unlock()
	}()

	return fn(ctx)
}

// InFlight reports whether a check is currently running
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checking
}
