// Package counter implements the demo counter widget.
package counter

// Counter is an integer that can move up, down, or back to zero.
type Counter struct {
	count int
}

// New returns a counter at zero.
func New() *Counter {
	return &Counter{}
}

// Count returns the current value.
func (c *Counter) Count() int {
	return c.count
}

// Increment adds one.
func (c *Counter) Increment() {
	c.count++
}

// Decrement subtracts one. The value may go negative.
func (c *Counter) Decrement() {
	c.count--
}

// Reset returns the counter to zero.
func (c *Counter) Reset() {
	c.count = 0
}
