package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/teamboard/internal/gateway"
	"github.com/joescharf/teamboard/internal/models"
)

// scriptedLister returns queued responses in order, repeating the last.
type scriptedLister struct {
	mu        sync.Mutex
	responses []listResponse
	calls     int
}

type listResponse struct {
	issues []models.Issue
	err    error
}

func (s *scriptedLister) push(issues []models.Issue, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, listResponse{issues, err})
}

func (s *scriptedLister) List(_ context.Context) ([]models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.responses) == 0 {
		return nil, nil
	}
	r := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return r.issues, r.err
}

func (s *scriptedLister) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func issue(id string, status models.Status, title string) models.Issue {
	return models.Issue{
		ID: models.ID(id),
		Fields: models.Fields{
			Title:    title,
			Status:   status,
			Priority: models.PriorityMedium,
			TeamID:   "1",
		},
	}
}

func TestCurrent_NotLoaded(t *testing.T) {
	c := New(&scriptedLister{})
	snap := c.Current()
	assert.False(t, snap.Loaded)
	assert.Empty(t, snap.Issues)
}

func TestRefresh_ReplacesSnapshot(t *testing.T) {
	l := &scriptedLister{}
	l.push([]models.Issue{issue("1", models.StatusOpen, "A")}, nil)
	l.push([]models.Issue{issue("2", models.StatusClosed, "B")}, nil)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := New(l, WithClock(func() time.Time { return fixed }))

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Loaded)
	assert.Equal(t, fixed, snap.FetchedAt)
	require.Len(t, snap.Issues, 1)
	assert.Equal(t, models.ID("1"), snap.Issues[0].ID)

	snap, err = c.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Issues, 1)
	assert.Equal(t, models.ID("2"), snap.Issues[0].ID, "snapshot replaced wholesale")
	assert.Equal(t, uint64(2), snap.Version)
}

func TestRefresh_FailureKeepsPreviousIssues(t *testing.T) {
	l := &scriptedLister{}
	l.push([]models.Issue{issue("1", models.StatusOpen, "A")}, nil)
	transport := &gateway.Error{Op: "list issues", Kind: gateway.KindTransport}
	l.push(nil, transport)
	l.push([]models.Issue{issue("1", models.StatusOpen, "A"), issue("3", models.StatusOpen, "C")}, nil)

	c := New(l)
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	snap, err := c.Refresh(context.Background())
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.ErrorIs(t, err, gateway.ErrTransport)

	assert.True(t, snap.Loaded, "data stays loaded")
	assert.True(t, snap.Stale())
	require.Len(t, snap.Issues, 1)
	assert.Equal(t, models.ID("1"), snap.Issues[0].ID)
	assert.Equal(t, c.Current().Issues, snap.Issues)

	snap, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Stale(), "success clears the error indicator")
	assert.Len(t, snap.Issues, 2)
}

func TestRefresh_FailureBeforeFirstLoad(t *testing.T) {
	l := &scriptedLister{}
	l.push(nil, errors.New("boom"))

	c := New(l)
	snap, err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.False(t, snap.Loaded)
	assert.True(t, snap.Stale())
}

func TestRefresh_DedupesLastWriteWins(t *testing.T) {
	l := &scriptedLister{}
	l.push([]models.Issue{
		issue("1", models.StatusOpen, "old"),
		issue("2", models.StatusOpen, "B"),
		issue("1", models.StatusClosed, "new"),
	}, nil)

	c := New(l)
	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Issues, 2)
	assert.Equal(t, models.ID("1"), snap.Issues[0].ID)
	assert.Equal(t, "new", snap.Issues[0].Title)
	assert.Equal(t, models.StatusClosed, snap.Issues[0].Status)
}

func TestSnapshotFind(t *testing.T) {
	snap := Snapshot{Issues: []models.Issue{issue("1", models.StatusOpen, "A")}}
	got, ok := snap.Find("1")
	assert.True(t, ok)
	assert.Equal(t, "A", got.Title)

	_, ok = snap.Find("9")
	assert.False(t, ok)
}

func TestSubscribe_ReceivesLatest(t *testing.T) {
	l := &scriptedLister{}
	l.push([]models.Issue{issue("1", models.StatusOpen, "A")}, nil)
	l.push([]models.Issue{issue("2", models.StatusOpen, "B")}, nil)

	c := New(l)
	ch, cancel := c.Subscribe()
	defer cancel()

	_, _ = c.Refresh(context.Background())
	_, _ = c.Refresh(context.Background())

	snap := <-ch
	assert.Equal(t, uint64(2), snap.Version, "slow reader only sees the newest snapshot")

	select {
	case <-ch:
		t.Fatal("no further snapshot expected")
	default:
	}

	cancel()
	_, _ = c.Refresh(context.Background())
	_, ok := <-ch
	assert.False(t, ok, "cancelled subscription is closed and receives nothing")
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	c := New(&scriptedLister{})
	ch, cancel := c.Subscribe()
	other, cancelOther := c.Subscribe()
	defer cancelOther()

	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed by cancel")
	}

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	snap := <-other
	assert.Equal(t, uint64(1), snap.Version, "remaining subscribers still receive")
}

// gatedLister blocks every List call until the test releases it, so
// responses can be delivered out of order.
type gatedLister struct {
	started chan int
	gates   []chan []models.Issue

	mu sync.Mutex
	n  int
}

func newGatedLister(calls int) *gatedLister {
	l := &gatedLister{started: make(chan int, calls)}
	for i := 0; i < calls; i++ {
		l.gates = append(l.gates, make(chan []models.Issue))
	}
	return l
}

func (l *gatedLister) List(_ context.Context) ([]models.Issue, error) {
	l.mu.Lock()
	i := l.n
	l.n++
	l.mu.Unlock()

	l.started <- i
	return <-l.gates[i], nil
}

func TestRefresh_ConcurrentLastResponseWins(t *testing.T) {
	l := newGatedLister(2)
	c := New(l)
	ch, cancel := c.Subscribe()
	defer cancel()
	ctx := context.Background()

	type result struct {
		snap Snapshot
		err  error
	}
	refresh := func() <-chan result {
		out := make(chan result, 1)
		go func() {
			snap, err := c.Refresh(ctx)
			out <- result{snap, err}
		}()
		return out
	}

	first := refresh()
	require.Equal(t, 0, <-l.started)
	second := refresh()
	require.Equal(t, 1, <-l.started)

	// The later request answers first.
	l.gates[1] <- []models.Issue{issue("2", models.StatusClosed, "from second")}
	r2 := <-second
	require.NoError(t, r2.err)
	assert.Equal(t, uint64(1), r2.snap.Version)
	got := <-ch
	assert.Equal(t, "from second", got.Issues[0].Title)

	l.gates[0] <- []models.Issue{issue("1", models.StatusOpen, "from first")}
	r1 := <-first
	require.NoError(t, r1.err)
	assert.Equal(t, uint64(2), r1.snap.Version)
	got = <-ch
	assert.Equal(t, "from first", got.Issues[0].Title)

	cur := c.Current()
	require.Len(t, cur.Issues, 1)
	assert.Equal(t, models.ID("1"), cur.Issues[0].ID, "the response applied last is adopted")
	assert.Equal(t, uint64(2), cur.Version)
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	l := &scriptedLister{}
	l.push([]models.Issue{issue("1", models.StatusOpen, "A")}, nil)

	ticks := make(chan time.Time)
	stopped := make(chan struct{})
	var gotInterval time.Duration
	c := New(l, WithTicker(func(d time.Duration) (<-chan time.Time, func()) {
		gotInterval = d
		return ticks, func() { close(stopped) }
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	// The first send is accepted only once Run has fetched and is waiting
	// on the ticker.
	ticks <- time.Time{}
	ticks <- time.Time{}
	require.Eventually(t, func() bool { return l.Calls() == 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	<-stopped
	assert.Equal(t, 5*time.Millisecond, gotInterval)
	assert.Equal(t, 3, l.Calls(), "one immediate fetch plus one per tick")
	assert.True(t, c.Current().Loaded)
}

func TestRun_DefaultInterval(t *testing.T) {
	var gotInterval time.Duration
	c := New(&scriptedLister{}, WithTicker(func(d time.Duration) (<-chan time.Time, func()) {
		gotInterval = d
		return nil, func() {}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 0)
		close(done)
	}()
	require.Eventually(t, func() bool { return c.Current().Loaded }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, DefaultInterval, gotInterval)
}
