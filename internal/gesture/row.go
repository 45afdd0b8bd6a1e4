// Package gesture models swipe-to-delete on a list row: drag to reveal the
// delete action, then confirm or cancel. Whatever happens, the row ends at rest.
package gesture

import (
	"context"
	"errors"
	"math"
	"sync"
)

var (
	ErrNotRevealed = errors.New("row is not revealed")
	ErrClosed      = errors.New("confirmation already closed")
)

type State int

const (
	Resting State = iota
	Dragging
	Revealed
	Confirming
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case Revealed:
		return "revealed"
	case Confirming:
		return "confirming"
	default:
		return "resting"
	}
}

// Thresholds are in logical units of horizontal travel.
type Thresholds struct {
	Jitter         float64
	Reveal         float64
	RevealedOffset float64
}

var DefaultThresholds = Thresholds{Jitter: 8, Reveal: 80, RevealedOffset: 96}

// Row is the gesture state of one list row.
type Row struct {
	id string
	th Thresholds

	mu      sync.Mutex
	state   State
	offset  float64
	pending *Confirmation
}

func NewRow(id string, th Thresholds) *Row {
	return &Row{id: id, th: th}
}

func (r *Row) ID() string { return r.id }

func (r *Row) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Row) Offset() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

// Drag reports the total horizontal displacement since the touch started.
// The sign gives the direction; only the distance drives transitions.
func (r *Row) Drag(dx float64) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	dist := math.Abs(dx)
	switch r.state {
	case Resting:
		if dist > r.th.Jitter {
			r.state = Dragging
			r.offset = dx
		}
	case Dragging:
		r.offset = dx
	}
	if r.state == Dragging && dist > r.th.Reveal {
		r.state = Revealed
		r.offset = math.Copysign(r.th.RevealedOffset, dx)
	}
	return r.state
}

// Release ends the touch. A row dragged short of the reveal threshold springs
// back; a revealed row stays open.
func (r *Row) Release() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Dragging || r.state == Resting {
		r.state = Resting
		r.offset = 0
	}
	return r.state
}

// Reset puts the row back at rest. An open confirmation is cancelled, so its
// reset still runs once.
func (r *Row) Reset() {
	r.mu.Lock()
	pending := r.pending
	r.state = Resting
	r.offset = 0
	r.mu.Unlock()

	if pending != nil {
		pending.close()
	}
}

// RequestDelete opens a confirmation for a revealed row. reset is the caller's
// own position reset; it runs exactly once when the confirmation closes, along
// with the row's own return to rest.
func (r *Row) RequestDelete(reset func()) (*Confirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Revealed {
		return nil, ErrNotRevealed
	}
	c := &Confirmation{row: r, targetID: r.id, reset: reset}
	r.state = Confirming
	r.pending = c
	return c, nil
}

// Confirmation is an open delete dialog for one row.
type Confirmation struct {
	row      *Row
	targetID string
	reset    func()

	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (c *Confirmation) TargetID() string { return c.targetID }

func (c *Confirmation) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Cancel closes the dialog from its cancel action.
func (c *Confirmation) Cancel() {
	c.close()
}

// Dismiss closes the dialog from a backdrop tap. It behaves exactly like Cancel.
func (c *Confirmation) Dismiss() {
	c.close()
}

// Confirm resets the row, closes the dialog and only then runs del. If del
// fails the row is already at rest and the error is returned as is.
func (c *Confirmation) Confirm(ctx context.Context, del func(ctx context.Context, id string) error) error {
	if !c.close() {
		return ErrClosed
	}
	return del(ctx, c.targetID)
}

// close runs the reset once and reports whether this call was the one that
// closed the dialog.
func (c *Confirmation) close() bool {
	first := false
	c.once.Do(func() {
		first = true
		if c.reset != nil {
			c.reset()
		}
		c.row.mu.Lock()
		if c.row.pending == c {
			c.row.state = Resting
			c.row.offset = 0
			c.row.pending = nil
		}
		c.row.mu.Unlock()

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	})
	return first
}
