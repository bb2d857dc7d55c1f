// Package reveal tracks how much of the filtered view has been handed to the
// rendering layer and decides what a "show more" request should do.
package reveal

// DefaultBatchSize is used when a cursor is created with a non-positive size.
const DefaultBatchSize = 12

// Action is the outcome of a show-more decision.
type Action int

const (
	// Reveal exposes the next slice of already filtered items.
	Reveal Action = iota

	// Fetch asks for another remote page before revealing.
	Fetch

	// Exhausted means nothing more can be shown.
	Exhausted
)

func (a Action) String() string {
	switch a {
	case Reveal:
		return "reveal"
	case Fetch:
		return "fetch"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Step is a show-more decision. From and To bound the slice of the view to
// reveal when Action is Reveal.
type Step struct {
	Action Action
	From   int
	To     int
}

// Cursor counts the leading view items exposed so far.
// Invariant: 0 <= Displayed() <= view length at the last Reset/Advance.
type Cursor struct {
	batchSize int
	displayed int
}

// New creates a cursor revealing batchSize items at a time.
func New(batchSize int) *Cursor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Cursor{batchSize: batchSize}
}

// BatchSize returns the reveal batch size.
func (c *Cursor) BatchSize() int {
	return c.batchSize
}

// Displayed returns the number of view items exposed.
func (c *Cursor) Displayed() int {
	return c.displayed
}

// Reset starts over on a recomputed view and returns the end of the leading
// slice to emit as a full replacement.
func (c *Cursor) Reset(viewLen int) int {
	c.displayed = min(c.batchSize, max(viewLen, 0))
	return c.displayed
}

// Next decides what a show-more request does. canFetch reports whether the
// remote side may hold more pages and no fetch is outstanding.
// Next does not move the cursor.
func (c *Cursor) Next(viewLen int, canFetch bool) Step {
	if c.displayed < viewLen {
		return Step{
			Action: Reveal,
			From:   c.displayed,
			To:     min(c.displayed+c.batchSize, viewLen),
		}
	}
	if canFetch {
		return Step{Action: Fetch, From: c.displayed, To: c.displayed}
	}
	return Step{Action: Exhausted, From: c.displayed, To: c.displayed}
}

// Advance reveals the next batch of a view of length viewLen and returns the
// revealed bounds. from == to when nothing was left to reveal.
func (c *Cursor) Advance(viewLen int) (from, to int) {
	from = c.displayed
	if from >= viewLen {
		return from, from
	}
	to = min(from+c.batchSize, viewLen)
	c.displayed = to
	return from, to
}

// Clamp pulls the cursor back inside a view of length viewLen.
func (c *Cursor) Clamp(viewLen int) {
	if c.displayed > viewLen {
		c.displayed = max(viewLen, 0)
	}
}

// Remaining reports whether revealed items lag behind the view.
func (c *Cursor) Remaining(viewLen int) bool {
	return c.displayed < viewLen
}
