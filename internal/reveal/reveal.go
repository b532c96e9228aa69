// Package reveal paces how much of a ranked list is visible. The controller
// only counts; the owner schedules ticks and must keep at most one tick
// timer alive.
package reveal

import "time"

const (
	DefaultBatch    = 4
	DefaultInterval = 100 * time.Millisecond
)

type Controller struct {
	batch   int
	total   int
	visible int
}

func New(batch int) *Controller {
	if batch <= 0 {
		batch = DefaultBatch
	}
	return &Controller{batch: batch}
}

// Replace swaps in a list of the given length. The visible prefix keeps its
// current length, clamped to the new list.
func (c *Controller) Replace(total int) {
	if total < 0 {
		total = 0
	}
	c.total = total
	if c.visible > total {
		c.visible = total
	}
}

// Tick grows the visible prefix by one batch and reports whether another
// tick is needed.
func (c *Controller) Tick() bool {
	if c.visible < c.total {
		c.visible += c.batch
		if c.visible > c.total {
			c.visible = c.total
		}
	}
	return c.Pending()
}

func (c *Controller) Pending() bool {
	return c.visible < c.total
}

func (c *Controller) Reset() {
	c.total = 0
	c.visible = 0
}

func (c *Controller) Visible() int { return c.visible }

func (c *Controller) Total() int { return c.total }
