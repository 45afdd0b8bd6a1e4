package gesture

import (
	"context"
	"sync"
)

// Board owns the row machines of one list screen. At most one confirmation is
// open at a time; opening another cancels the first.
type Board struct {
	th Thresholds

	mu     sync.Mutex
	rows   map[string]*Row
	active *Confirmation
}

func NewBoard(th Thresholds) *Board {
	return &Board{th: th, rows: map[string]*Row{}}
}

// Row returns the machine for id, creating it at rest on first use.
func (b *Board) Row(id string) *Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.rows[id]
	if !ok {
		row = NewRow(id, b.th)
		b.rows[id] = row
	}
	return row
}

func (b *Board) Drag(id string, dx float64) State {
	return b.Row(id).Drag(dx)
}

func (b *Board) Release(id string) State {
	return b.Row(id).Release()
}

// RequestDelete opens the confirmation for a revealed row.
func (b *Board) RequestDelete(id string, reset func()) (*Confirmation, error) {
	row := b.Row(id)

	b.mu.Lock()
	prev := b.active
	if prev != nil && prev.TargetID() == id && !prev.Closed() {
		b.mu.Unlock()
		return prev, nil
	}
	b.active = nil
	b.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	c, err := row.RequestDelete(reset)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.active = c
	b.mu.Unlock()
	return c, nil
}

func (b *Board) Active() *Confirmation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != nil && b.active.Closed() {
		b.active = nil
	}
	return b.active
}

// Cancel closes the open confirmation, if any.
func (b *Board) Cancel() {
	if c := b.takeActive(); c != nil {
		c.Cancel()
	}
}

// Confirm runs del for the open confirmation. A successful delete forgets the
// row; a failed one leaves it at rest.
func (b *Board) Confirm(ctx context.Context, del func(ctx context.Context, id string) error) error {
	c := b.takeActive()
	if c == nil {
		return ErrClosed
	}
	if err := c.Confirm(ctx, del); err != nil {
		return err
	}
	b.Forget(c.TargetID())
	return nil
}

func (b *Board) Forget(id string) {
	b.mu.Lock()
	delete(b.rows, id)
	b.mu.Unlock()
}

// Reset cancels the open confirmation and returns every row to rest.
func (b *Board) Reset() {
	b.Cancel()
	b.mu.Lock()
	rows := make([]*Row, 0, len(b.rows))
	for _, row := range b.rows {
		rows = append(rows, row)
	}
	b.mu.Unlock()
	for _, row := range rows {
		row.Reset()
	}
}

func (b *Board) takeActive() *Confirmation {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.active
	b.active = nil
	return c
}
