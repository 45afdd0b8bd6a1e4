// Package picker resolves a foreign reference against a large, server-paged
// collection: debounced search, incremental pages, no duplicate ids.
package picker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bizbook/core/internal/domain"
	"bizbook/core/internal/logging"
	"bizbook/core/internal/metrics"
)

var ErrClosed = errors.New("picker is closed")

const (
	DefaultPageSize = 20
	DefaultDebounce = 300 * time.Millisecond
)

// Source serves one page of a search over a kind.
type Source[T domain.Entity] interface {
	Kind() domain.Kind
	FetchPage(ctx context.Context, query string, page int, limit int) ([]T, error)
}

type Phase int

const (
	Idle Phase = iota
	Searching
	PageLoaded
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case Searching:
		return "searching"
	case PageLoaded:
		return "page_loaded"
	case Exhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

type State[T domain.Entity] struct {
	Phase   Phase
	Query   string
	Page    int
	Items   []T
	HasMore bool
	Loading bool
	LastErr error
}

// Timer is the part of *time.Timer the picker needs.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d. The default is time.AfterFunc.
type Scheduler func(d time.Duration, fn func()) Timer

func afterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

type options struct {
	pageSize int
	debounce time.Duration
	exclude  map[string]struct{}
	schedule Scheduler
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

type Option func(*options)

func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.debounce = d
		}
	}
}

// WithExclusions drops items whose label matches one of labels, ignoring case
// and surrounding space.
func WithExclusions(labels ...string) Option {
	return func(o *options) {
		for _, l := range labels {
			o.exclude[normalizeLabel(l)] = struct{}{}
		}
	}
}

func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.schedule = s
		}
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Picker is safe for concurrent use. Fetches run in the caller's goroutine,
// except debounced searches which run on the scheduler's.
type Picker[T domain.Entity] struct {
	source Source[T]
	opts   options

	mu       sync.Mutex
	open     bool
	session  context.Context
	endOpen  context.CancelFunc
	phase    Phase
	query    string
	page     int
	items    []T
	seen     map[string]struct{}
	hasMore  bool
	loading  bool
	lastErr  error
	gen      uint64
	timer    Timer
	endFetch context.CancelFunc
	fetchSeq uint64
	onChange func(State[T])
}

// ticket is a fetch reserved under the lock: loading is already set and its
// cancel func already owns the endFetch slot.
type ticket struct {
	ctx    context.Context
	cancel context.CancelFunc
	seq    uint64
	gen    uint64
	page   int
	query  string
	limit  int
}

func New[T domain.Entity](source Source[T], opts ...Option) *Picker[T] {
	o := options{
		pageSize: DefaultPageSize,
		debounce: DefaultDebounce,
		exclude:  map[string]struct{}{},
		schedule: afterFunc,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrDiscard(o.logger)
	return &Picker[T]{source: source, opts: o, seen: map[string]struct{}{}}
}

// OnChange registers a callback invoked after every state change, outside the
// picker lock.
func (p *Picker[T]) OnChange(fn func(State[T])) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Open resets pagination and fetches the first page for the current query.
func (p *Picker[T]) Open(ctx context.Context) error {
	p.mu.Lock()
	p.stopLocked()
	p.session, p.endOpen = context.WithCancel(ctx)
	p.open = true
	p.resetLocked()
	gen := p.gen
	p.mu.Unlock()
	p.notify()

	return p.fetch(gen, 1)
}

// SetQuery records the query and, once the debounce window passes without
// another change, restarts the search from page one. Results for earlier
// queries are dropped when they arrive.
func (p *Picker[T]) SetQuery(query string) {
	p.mu.Lock()
	p.query = query
	p.gen++
	if p.endFetch != nil {
		p.endFetch()
		p.endFetch = nil
	}
	p.loading = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if !p.open {
		p.mu.Unlock()
		return
	}
	gen := p.gen
	p.timer = p.opts.schedule(p.opts.debounce, func() {
		p.mu.Lock()
		if gen != p.gen || !p.open {
			p.mu.Unlock()
			return
		}
		p.timer = nil
		p.resetLocked()
		next := p.gen
		p.mu.Unlock()
		p.notify()
		_ = p.fetch(next, 1)
	})
	p.mu.Unlock()
}

// LoadMore fetches the next page. It does nothing while a fetch or a
// debounced search is pending, or once the query is exhausted.
func (p *Picker[T]) LoadMore(ctx context.Context) error {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.loading || p.timer != nil || !p.hasMore {
		p.mu.Unlock()
		return nil
	}
	t := p.beginLocked(ctx, p.page+1)
	p.mu.Unlock()
	p.notify()

	return p.run(t)
}

// Select resolves id against the loaded items and closes the picker.
func (p *Picker[T]) Select(id string) (domain.Ref, bool) {
	p.mu.Lock()
	var (
		ref   domain.Ref
		found bool
	)
	for _, item := range p.items {
		if item.EntityID() == id {
			ref = domain.Ref{ID: item.EntityID(), Label: item.EntityLabel()}
			found = true
			break
		}
	}
	if found {
		p.stopLocked()
	}
	p.mu.Unlock()
	if found {
		p.notify()
	}
	return ref, found
}

// Close stops any pending search and ignores fetches still in flight. Loaded
// items stay visible until the next Open.
func (p *Picker[T]) Close() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
	p.notify()
}

func (p *Picker[T]) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *Picker[T]) State() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Picker[T]) fetch(gen uint64, page int) error {
	p.mu.Lock()
	if gen != p.gen || !p.open || p.session == nil {
		p.mu.Unlock()
		return nil
	}
	t := p.beginLocked(p.session, page)
	p.mu.Unlock()
	p.notify()

	return p.run(t)
}

func (p *Picker[T]) beginLocked(ctx context.Context, page int) ticket {
	fetchCtx, cancel := context.WithCancel(ctx)
	if p.endFetch != nil {
		p.endFetch()
	}
	p.fetchSeq++
	p.endFetch = cancel
	p.loading = true
	if page == 1 {
		p.phase = Searching
	}
	return ticket{
		ctx:    fetchCtx,
		cancel: cancel,
		seq:    p.fetchSeq,
		gen:    p.gen,
		page:   page,
		query:  p.query,
		limit:  p.opts.pageSize,
	}
}

func (p *Picker[T]) run(t ticket) error {
	rows, err := p.source.FetchPage(t.ctx, strings.TrimSpace(t.query), t.page, t.limit)
	t.cancel()

	p.mu.Lock()
	if t.gen != p.gen || !p.open || t.seq != p.fetchSeq {
		p.mu.Unlock()
		p.opts.metrics.Discarded("picker")
		p.opts.logger.WithFields(logrus.Fields{
			"kind":  p.source.Kind(),
			"query": t.query,
			"page":  t.page,
		}).Debug("discarded stale picker page")
		return nil
	}
	p.endFetch = nil
	p.loading = false
	if err != nil {
		p.lastErr = err
		if t.page == 1 {
			p.phase = Idle
		}
		p.mu.Unlock()
		logging.LogError(p.opts.logger, "picker", "FetchPage", string(p.source.Kind()),
			map[string]any{"query": t.query, "page": t.page}, err)
		p.notify()
		return err
	}
	p.mergeLocked(rows)
	p.page = t.page
	p.hasMore = len(rows) >= t.limit
	p.lastErr = nil
	if p.hasMore {
		p.phase = PageLoaded
	} else {
		p.phase = Exhausted
	}
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *Picker[T]) mergeLocked(rows []T) {
	for _, row := range rows {
		id := row.EntityID()
		if _, dup := p.seen[id]; dup {
			continue
		}
		if _, excluded := p.opts.exclude[normalizeLabel(row.EntityLabel())]; excluded {
			continue
		}
		p.seen[id] = struct{}{}
		p.items = append(p.items, row)
	}
}

func (p *Picker[T]) resetLocked() {
	p.gen++
	p.page = 0
	p.items = nil
	p.seen = map[string]struct{}{}
	p.hasMore = true
	p.loading = false
	p.lastErr = nil
	p.phase = Idle
}

func (p *Picker[T]) stopLocked() {
	p.open = false
	p.gen++
	p.loading = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.endFetch != nil {
		p.endFetch()
		p.endFetch = nil
	}
	if p.endOpen != nil {
		p.endOpen()
		p.endOpen = nil
	}
	p.session = nil
}

func (p *Picker[T]) stateLocked() State[T] {
	items := make([]T, len(p.items))
	copy(items, p.items)
	return State[T]{
		Phase:   p.phase,
		Query:   p.query,
		Page:    p.page,
		Items:   items,
		HasMore: p.hasMore,
		Loading: p.loading,
		LastErr: p.lastErr,
	}
}

func (p *Picker[T]) notify() {
	p.mu.Lock()
	fn := p.onChange
	st := p.stateLocked()
	p.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
