// Package service ties the record cache, the derivation engine, the pickers
// and the swipe-to-delete gesture together the way each management screen
// uses them.
package service

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"bizbook/core/internal/derive"
	"bizbook/core/internal/domain"
	"bizbook/core/internal/gesture"
	"bizbook/core/internal/logging"
	"bizbook/core/internal/metrics"
	"bizbook/core/internal/records"
)

// Draft is a form whose values become the wire body D once validated.
type Draft[D any] interface {
	Input() D
}

// selfValidating drafts carry rules beyond their struct tags.
type selfValidating interface {
	Validate() error
}

type Deps struct {
	Logger     *logrus.Logger
	Metrics    *metrics.Metrics
	Validator  *derive.Validator
	Thresholds gesture.Thresholds
}

func (d Deps) withDefaults() Deps {
	d.Logger = logging.OrDiscard(d.Logger)
	if d.Validator == nil {
		d.Validator = derive.NewValidator()
	}
	if d.Thresholds == (gesture.Thresholds{}) {
		d.Thresholds = gesture.DefaultThresholds
	}
	return d
}

// Screen is one record-management screen: a list mirrored from the server and
// the row gestures drawn over it.
type Screen[T domain.Entity, D any] struct {
	cache     *records.Cache[T, D]
	board     *gesture.Board
	validator *derive.Validator
	logger    *logrus.Logger

	mu     sync.Mutex
	active bool
}

func NewScreen[T domain.Entity, D any](source records.Source[T, D], deps Deps) *Screen[T, D] {
	deps = deps.withDefaults()
	return &Screen[T, D]{
		cache:     records.New(source, deps.Logger, deps.Metrics),
		board:     gesture.NewBoard(deps.Thresholds),
		validator: deps.Validator,
		logger:    deps.Logger,
	}
}

func (s *Screen[T, D]) Kind() domain.Kind {
	return s.cache.Kind()
}

func (s *Screen[T, D]) Records() *records.Cache[T, D] {
	return s.cache
}

func (s *Screen[T, D]) Board() *gesture.Board {
	return s.board
}

func (s *Screen[T, D]) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Activate rebuilds the list from the server. Every focus reloads; nothing is
// kept across a blur.
func (s *Screen[T, D]) Activate(ctx context.Context) error {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	s.logger.WithField("kind", s.Kind()).Debug("screen activated")
	return s.cache.Load(ctx)
}

// Refresh reloads while the screen stays focused.
func (s *Screen[T, D]) Refresh(ctx context.Context) error {
	return s.cache.Load(ctx)
}

// Blur drops the list and puts every row back at rest. Pickers are owned by
// forms and keep their state.
func (s *Screen[T, D]) Blur() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	s.board.Reset()
	s.cache.Clear()
}

func (s *Screen[T, D]) Items() []T {
	return s.cache.Snapshot().Items
}

// Submit validates the draft and then creates (empty id) or updates the
// record. Validation failures are returned as derive.ValidationErrors and
// never reach the network.
func (s *Screen[T, D]) Submit(ctx context.Context, id string, draft Draft[D]) (T, error) {
	var err error
	if sv, ok := draft.(selfValidating); ok {
		err = sv.Validate()
	} else {
		err = s.validator.Struct(draft)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return s.Save(ctx, id, draft.Input())
}

// Save sends an already validated body.
func (s *Screen[T, D]) Save(ctx context.Context, id string, input D) (T, error) {
	if strings.TrimSpace(id) == "" {
		return s.cache.Create(ctx, input)
	}
	return s.cache.Update(ctx, id, input)
}

func (s *Screen[T, D]) Swipe(id string, dx float64) gesture.State {
	return s.board.Drag(id, dx)
}

func (s *Screen[T, D]) Release(id string) gesture.State {
	return s.board.Release(id)
}

// RequestDelete opens the confirmation for a revealed row. reset is the view's
// hook for snapping the row back; it may be nil.
func (s *Screen[T, D]) RequestDelete(id string, reset func()) (*gesture.Confirmation, error) {
	return s.board.RequestDelete(id, reset)
}

// ConfirmDelete deletes the record behind the open confirmation. The row is at
// rest before the request goes out; on failure the record stays in the list.
func (s *Screen[T, D]) ConfirmDelete(ctx context.Context) error {
	return s.board.Confirm(ctx, s.cache.Delete)
}

func (s *Screen[T, D]) CancelDelete() {
	s.board.Cancel()
}
