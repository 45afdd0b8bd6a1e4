package picker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbook/core/internal/domain"
)

type testItem struct {
	ID    string
	Label string
}

func (i testItem) EntityID() string    { return i.ID }
func (i testItem) EntityLabel() string { return i.Label }

type fetchCall struct {
	query string
	page  int
	limit int
}

// testSource pages over a fixed list, filtering by substring. A gate registered
// for a query holds every fetch of that query until it is closed.
type testSource struct {
	mu      sync.Mutex
	items   []testItem
	gates   map[string]chan struct{}
	calls   []fetchCall
	overlap int
	err     error
}

func newTestSource(n int) *testSource {
	items := make([]testItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, testItem{ID: fmt.Sprintf("p%02d", i), Label: fmt.Sprintf("Product %02d", i)})
	}
	return &testSource{items: items, gates: map[string]chan struct{}{}}
}

func (s *testSource) Kind() domain.Kind { return domain.KindProduct }

func (s *testSource) FetchPage(_ context.Context, query string, page int, limit int) ([]testItem, error) {
	s.mu.Lock()
	s.calls = append(s.calls, fetchCall{query: query, page: page, limit: limit})
	gate := s.gates[query]
	err := s.err
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []testItem
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(item.Label), strings.ToLower(query)) {
			matched = append(matched, item)
		}
	}
	start := (page-1)*limit - s.overlap
	if start < 0 {
		start = 0
	}
	if start >= len(matched) {
		return []testItem{}, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]testItem(nil), matched[start:end]...), nil
}

func (s *testSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *testSource) lastCall() fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type fakeTimer struct {
	fn      func()
	delay   time.Duration
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeClock records scheduled callbacks; fire runs the newest live one.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) schedule(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: fn, delay: d}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) fire() bool {
	c.mu.Lock()
	var next *fakeTimer
	for i := len(c.timers) - 1; i >= 0; i-- {
		if !c.timers[i].stopped {
			next = c.timers[i]
			break
		}
	}
	if next != nil {
		next.stopped = true
	}
	c.mu.Unlock()
	if next == nil {
		return false
	}
	next.fn()
	return true
}

func itemIDs(items []testItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func assertUnique(t *testing.T, items []testItem) {
	t.Helper()
	seen := map[string]bool{}
	for _, id := range itemIDs(items) {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestOpenFetchesFirstPage(t *testing.T) {
	src := newTestSource(45)
	p := New[testItem](src, WithPageSize(20))

	require.NoError(t, p.Open(context.Background()))

	st := p.State()
	assert.Equal(t, PageLoaded, st.Phase)
	assert.Equal(t, 1, st.Page)
	assert.Len(t, st.Items, 20)
	assert.True(t, st.HasMore)
	assert.False(t, st.Loading)
	assert.Equal(t, fetchCall{query: "", page: 1, limit: 20}, src.lastCall())
}

func TestLoadMoreStopsAfterShortPage(t *testing.T) {
	src := newTestSource(45)
	p := New[testItem](src, WithPageSize(20))
	require.NoError(t, p.Open(context.Background()))

	require.NoError(t, p.LoadMore(context.Background()))
	assert.True(t, p.State().HasMore)
	require.NoError(t, p.LoadMore(context.Background()))

	st := p.State()
	assert.False(t, st.HasMore)
	assert.Equal(t, Exhausted, st.Phase)
	assert.Len(t, st.Items, 45)
	assertUnique(t, st.Items)

	require.NoError(t, p.LoadMore(context.Background()))
	assert.Equal(t, 3, src.callCount(), "no fetch after the query is exhausted")
}

func TestExactMultipleNeedsEmptyPageToExhaust(t *testing.T) {
	src := newTestSource(40)
	p := New[testItem](src, WithPageSize(20))
	require.NoError(t, p.Open(context.Background()))
	require.NoError(t, p.LoadMore(context.Background()))
	assert.True(t, p.State().HasMore)

	require.NoError(t, p.LoadMore(context.Background()))
	assert.False(t, p.State().HasMore)
	assert.Len(t, p.State().Items, 40)
}

func TestOverlappingPagesMergeWithoutDuplicates(t *testing.T) {
	src := newTestSource(30)
	src.overlap = 3
	p := New[testItem](src, WithPageSize(10))
	require.NoError(t, p.Open(context.Background()))

	for p.State().HasMore {
		require.NoError(t, p.LoadMore(context.Background()))
	}

	st := p.State()
	assertUnique(t, st.Items)
	assert.Len(t, st.Items, 30)
	assert.Equal(t, "p01", st.Items[0].ID)
	assert.Equal(t, "p30", st.Items[len(st.Items)-1].ID)
}

func (s *testSource) pageCalls(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.page == page {
			n++
		}
	}
	return n
}

func TestConcurrentLoadMoreFetchesNextPageOnce(t *testing.T) {
	for round := 0; round < 200; round++ {
		src := newTestSource(45)
		p := New[testItem](src, WithPageSize(20))
		if err := p.Open(context.Background()); err != nil {
			t.Fatalf("open: %v", err)
		}

		gate := make(chan struct{})
		src.mu.Lock()
		src.gates[""] = gate
		src.mu.Unlock()

		start := make(chan struct{})
		results := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				<-start
				results <- p.LoadMore(context.Background())
			}()
		}
		close(start)

		// One call finds the page already reserved and returns straight away.
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("round %d: skipped LoadMore returned %v", round, err)
			}
		case <-time.After(2 * time.Second):
			close(gate)
			t.Fatalf("round %d: both LoadMore calls blocked on the same page", round)
		}
		close(gate)
		if err := <-results; err != nil {
			t.Fatalf("round %d: LoadMore returned %v", round, err)
		}

		if n := src.pageCalls(2); n != 1 {
			t.Fatalf("round %d: page 2 fetched %d times, want 1", round, n)
		}
		st := p.State()
		if st.Loading || st.LastErr != nil || st.Page != 2 {
			t.Fatalf("round %d: state after load = %+v", round, st)
		}
	}
}

func TestSetQueryIsDebounced(t *testing.T) {
	src := newTestSource(30)
	clock := &fakeClock{}
	p := New[testItem](src, WithPageSize(10), WithScheduler(clock.schedule))
	require.NoError(t, p.Open(context.Background()))
	require.Equal(t, 1, src.callCount())

	p.SetQuery("1")
	p.SetQuery("12")
	assert.Equal(t, 1, src.callCount(), "nothing is fetched inside the debounce window")
	require.Len(t, clock.timers, 2)
	assert.True(t, clock.timers[0].stopped)
	assert.Equal(t, DefaultDebounce, clock.timers[1].delay)

	require.True(t, clock.fire())
	assert.Equal(t, 2, src.callCount())
	assert.Equal(t, fetchCall{query: "12", page: 1, limit: 10}, src.lastCall())

	st := p.State()
	assert.Equal(t, []string{"p12"}, itemIDs(st.Items))
	assert.False(t, st.HasMore)
	assert.Equal(t, "12", st.Query)
}

func TestLoadMoreWaitsForPendingSearch(t *testing.T) {
	src := newTestSource(30)
	clock := &fakeClock{}
	p := New[testItem](src, WithPageSize(10), WithScheduler(clock.schedule))
	require.NoError(t, p.Open(context.Background()))

	p.SetQuery("Product")
	require.NoError(t, p.LoadMore(context.Background()))
	assert.Equal(t, 1, src.callCount())
}

func TestStaleSearchResultIsDiscarded(t *testing.T) {
	src := newTestSource(30)
	gate := make(chan struct{})
	src.gates["1"] = gate
	clock := &fakeClock{}
	p := New[testItem](src, WithPageSize(10), WithScheduler(clock.schedule))
	require.NoError(t, p.Open(context.Background()))

	p.SetQuery("1")
	done := make(chan struct{})
	go func() {
		clock.fire()
		close(done)
	}()
	require.Eventually(t, func() bool { return src.callCount() == 2 }, time.Second, 5*time.Millisecond)

	p.SetQuery("2")
	require.True(t, clock.fire())
	close(gate)
	<-done

	st := p.State()
	assert.Equal(t, "2", st.Query)
	for _, item := range st.Items {
		assert.Contains(t, item.Label, "2")
	}
	assert.NotContains(t, itemIDs(st.Items), "p01")
	assert.False(t, st.Loading)
}

func TestCloseIgnoresInFlightFetch(t *testing.T) {
	src := newTestSource(30)
	gate := make(chan struct{})
	src.gates[""] = gate
	p := New[testItem](src, WithPageSize(10))

	done := make(chan error, 1)
	go func() { done <- p.Open(context.Background()) }()
	require.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, 5*time.Millisecond)

	p.Close()
	close(gate)
	require.NoError(t, <-done)

	st := p.State()
	assert.Empty(t, st.Items)
	assert.False(t, st.Loading)
	assert.False(t, p.IsOpen())
	assert.ErrorIs(t, p.LoadMore(context.Background()), ErrClosed)
}

func TestReopenResetsPagination(t *testing.T) {
	src := newTestSource(45)
	p := New[testItem](src, WithPageSize(20))
	require.NoError(t, p.Open(context.Background()))
	require.NoError(t, p.LoadMore(context.Background()))
	p.Close()
	assert.Len(t, p.State().Items, 40, "closing keeps what was loaded")

	require.NoError(t, p.Open(context.Background()))
	st := p.State()
	assert.Equal(t, 1, st.Page)
	assert.Len(t, st.Items, 20)
	assert.True(t, st.HasMore)
}

func TestSelectReturnsRefAndCloses(t *testing.T) {
	src := newTestSource(5)
	p := New[testItem](src)
	require.NoError(t, p.Open(context.Background()))

	ref, ok := p.Select("p03")
	require.True(t, ok)
	assert.Equal(t, domain.Ref{ID: "p03", Label: "Product 03"}, ref)
	assert.False(t, p.IsOpen())

	_, ok = p.Select("missing")
	assert.False(t, ok)
}

func TestFetchErrorIsKept(t *testing.T) {
	src := newTestSource(5)
	src.err = errors.New("boom")
	p := New[testItem](src)

	require.Error(t, p.Open(context.Background()))
	st := p.State()
	assert.Equal(t, Idle, st.Phase)
	assert.EqualError(t, st.LastErr, "boom")
	assert.False(t, st.Loading)

	src.err = nil
	require.NoError(t, p.Open(context.Background()))
	assert.NoError(t, p.State().LastErr)
}

type accountSource struct {
	accounts []domain.Account
}

func (s accountSource) Kind() domain.Kind { return domain.KindAccount }

func (s accountSource) FetchPage(_ context.Context, _ string, _ int, _ int) ([]domain.Account, error) {
	return s.accounts, nil
}

func TestTransferAccountsDropsReservedLedgers(t *testing.T) {
	src := accountSource{accounts: []domain.Account{
		{ID: "a1", Name: "Main Bank"},
		{ID: "a2", Name: "opening balance equity"},
		{ID: "a3", Name: " UNDEPOSITED FUNDS "},
		{ID: "a4", Name: "Retained Earnings"},
		{ID: "a5", Name: "Petty Cash"},
	}}
	p := TransferAccounts(src)
	require.NoError(t, p.Open(context.Background()))

	var got []string
	for _, a := range p.State().Items {
		got = append(got, a.ID)
	}
	assert.Equal(t, []string{"a1", "a5"}, got)
	assert.False(t, p.State().HasMore, "a short raw page ends the query")
}

func TestPlainAccountPickerKeepsReservedLedgers(t *testing.T) {
	src := accountSource{accounts: []domain.Account{
		{ID: "a1", Name: "Main Bank"},
		{ID: "a2", Name: "Retained Earnings"},
	}}
	p := New[domain.Account](src)
	require.NoError(t, p.Open(context.Background()))
	assert.Len(t, p.State().Items, 2)
}

func TestPhaseNames(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "searching", Searching.String())
	assert.Equal(t, "page_loaded", PageLoaded.String())
	assert.Equal(t, "exhausted", Exhausted.String())
}
