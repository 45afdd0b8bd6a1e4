package records

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbook/core/internal/domain"
)

type testRecord struct {
	ID    string
	Name  string
	Total int
}

func (r testRecord) EntityID() string    { return r.ID }
func (r testRecord) EntityLabel() string { return r.Name }

type testDraft struct {
	Name string
}

var errUnavailable = errors.New("gateway unavailable")

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

// testSource is an in-memory remote collection. listGate and createGate, when
// set, block the call until the test releases them.
type testSource struct {
	mu          sync.Mutex
	records     []testRecord
	next        int
	failNext    error
	listGate    chan struct{}
	listCalls   int
	createGate  chan struct{}
	createCalls int
}

func newTestSource(records ...testRecord) *testSource {
	return &testSource{records: records, next: len(records)}
}

func (s *testSource) Kind() domain.Kind { return domain.KindClient }

func (s *testSource) takeFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *testSource) List(ctx context.Context) ([]testRecord, error) {
	s.mu.Lock()
	s.listCalls++
	gate := s.listGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]testRecord(nil), s.records...), nil
}

func (s *testSource) Create(_ context.Context, d testDraft) (testRecord, error) {
	s.mu.Lock()
	s.createCalls++
	gate := s.createGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err := s.takeFailure(); err != nil {
		return testRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	rec := testRecord{ID: fmt.Sprintf("r%d", s.next), Name: d.Name, Total: 100 * s.next}
	s.records = append([]testRecord{rec}, s.records...)
	return rec, nil
}

func (s *testSource) Update(_ context.Context, id string, d testDraft) (testRecord, error) {
	if err := s.takeFailure(); err != nil {
		return testRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records[i].Name = d.Name
			s.records[i].Total++
			return s.records[i], nil
		}
	}
	return testRecord{}, errors.New("not found")
}

func (s *testSource) Delete(_ context.Context, id string) error {
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func ids(items []testRecord) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func seeded() *testSource {
	return newTestSource(
		testRecord{ID: "c", Name: "Charlie"},
		testRecord{ID: "b", Name: "Bravo"},
		testRecord{ID: "a", Name: "Alpha"},
	)
}

func TestLoadReplacesSnapshotAndTogglesLoading(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)

	var seenLoading []bool
	c.OnChange(func(s Snapshot[testRecord]) { seenLoading = append(seenLoading, s.Loading) })

	require.NoError(t, c.Load(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, []string{"c", "b", "a"}, ids(snap.Items))
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.LastErr)
	assert.Equal(t, []bool{true, false}, seenLoading)
}

func TestLoadFailureKeepsPreviousItems(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))

	src.failNext = errUnavailable
	err := c.Load(context.Background())
	require.ErrorIs(t, err, errUnavailable)

	snap := c.Snapshot()
	assert.Equal(t, []string{"c", "b", "a"}, ids(snap.Items))
	assert.False(t, snap.Loading)
	assert.ErrorIs(t, snap.LastErr, errUnavailable)
}

func TestLoadDropsDuplicateServerRows(t *testing.T) {
	src := newTestSource(testRecord{ID: "a"}, testRecord{ID: "b"}, testRecord{ID: "a"})
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"a", "b"}, ids(c.Snapshot().Items))
}

func TestCreatePrependsServerRecord(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))

	created, err := c.Create(context.Background(), testDraft{Name: "Delta"})
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, []string{created.ID, "c", "b", "a"}, ids(snap.Items))
	assert.Equal(t, 400, snap.Items[0].Total, "server-computed field must come from the response")
}

func TestCreateFailureLeavesListUnchanged(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))

	src.failNext = errUnavailable
	_, err := c.Create(context.Background(), testDraft{Name: "Delta"})
	require.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, []string{"c", "b", "a"}, ids(c.Snapshot().Items))
	assert.ErrorIs(t, c.Snapshot().LastErr, errUnavailable)
}

func TestUpdateReplacesInPlace(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))

	_, err := c.Update(context.Background(), "b", testDraft{Name: "Bravo 2"})
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, []string{"c", "b", "a"}, ids(snap.Items))
	assert.Equal(t, "Bravo 2", snap.Items[1].Name)
	assert.Equal(t, 1, snap.Items[1].Total)
}

func TestUpdateFailureLeavesListUnchanged(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))

	src.failNext = errUnavailable
	_, err := c.Update(context.Background(), "b", testDraft{Name: "nope"})
	require.Error(t, err)
	got, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, "Bravo", got.Name)
}

func TestDeleteFailureRetainsRecord(t *testing.T) {
	src := newTestSource(testRecord{ID: "X"}, testRecord{ID: "Y"})
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))

	src.failNext = errUnavailable
	require.ErrorIs(t, c.Delete(context.Background(), "X"), errUnavailable)
	_, ok := c.Get("X")
	assert.True(t, ok)

	require.NoError(t, c.Delete(context.Background(), "X"))
	_, ok = c.Get("X")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCreateThenRacingLoadDoesNotDuplicate(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))

	created, err := c.Create(context.Background(), testDraft{Name: "Delta"})
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, []string{created.ID, "c", "b", "a"}, ids(c.Snapshot().Items))
}

func TestCreateResultAlreadyLoadedIsReplacedNotPrepended(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)

	// the load already saw r4 by the time the create response arrives
	src.records = append([]testRecord{{ID: "r4", Name: "Delta"}}, src.records...)
	require.NoError(t, c.Load(context.Background()))

	created, err := c.Create(context.Background(), testDraft{Name: "Delta"})
	require.NoError(t, err)
	require.Equal(t, "r4", created.ID)

	assert.Equal(t, []string{"r4", "c", "b", "a"}, ids(c.Snapshot().Items))
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	src := seeded()
	gate := make(chan struct{})
	src.listGate = gate
	c := New[testRecord, testDraft](src, nil, nil)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Load(context.Background()) }()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.listCalls == 1
	}, timeout, tick)

	// a newer load cancels the first one and wins
	src.mu.Lock()
	src.listGate = nil
	src.records = []testRecord{{ID: "fresh"}}
	src.mu.Unlock()
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, <-firstDone)
	assert.Equal(t, []string{"fresh"}, ids(c.Snapshot().Items))
	assert.False(t, c.Snapshot().Loading)
}

func TestClearDiscardsInFlightLoad(t *testing.T) {
	src := seeded()
	src.listGate = make(chan struct{})
	c := New[testRecord, testDraft](src, nil, nil)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.listCalls == 1
	}, timeout, tick)

	c.Clear()
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Empty(t, snap.Items)
	assert.False(t, snap.Loading)
}

func TestMutationStartedBeforeClearIsNotApplied(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))

	gate := make(chan struct{})
	src.createGate = gate

	done := make(chan error, 1)
	go func() {
		_, err := c.Create(context.Background(), testDraft{Name: "late"})
		done <- err
	}()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.createCalls == 1
	}, timeout, tick)

	c.Clear()
	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 0, c.Len())

	// the server kept it, so the next load shows it
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 4, c.Len())
}

func TestCreateAfterClearLands(t *testing.T) {
	src := seeded()
	c := New[testRecord, testDraft](src, nil, nil)
	require.NoError(t, c.Load(context.Background()))
	c.Clear()

	_, err := c.Create(context.Background(), testDraft{Name: "fresh"})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestRandomMutationSequencesKeepIdsUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		src := seeded()
		c := New[testRecord, testDraft](src, nil, nil)
		require.NoError(t, c.Load(context.Background()))

		for step := 0; step < 40; step++ {
			if rng.Intn(5) == 0 {
				src.failNext = errUnavailable
			}
			snap := c.Snapshot()
			switch op := rng.Intn(4); {
			case op == 0:
				_, _ = c.Create(context.Background(), testDraft{Name: "n"})
			case op == 1 && len(snap.Items) > 0:
				_, _ = c.Update(context.Background(), snap.Items[rng.Intn(len(snap.Items))].ID, testDraft{Name: "u"})
			case op == 2 && len(snap.Items) > 0:
				_ = c.Delete(context.Background(), snap.Items[rng.Intn(len(snap.Items))].ID)
			default:
				_ = c.Load(context.Background())
			}
			src.failNext = nil

			seen := map[string]bool{}
			for _, id := range ids(c.Snapshot().Items) {
				require.False(t, seen[id], "duplicate id %s at round %d step %d", id, round, step)
				seen[id] = true
			}
		}
	}
}
