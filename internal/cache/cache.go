// Package cache keeps the client's snapshot of the team's issues.
//
// The snapshot is only ever replaced wholesale by a successful fetch. A
// failed fetch keeps the previous issues and records the error so callers
// can flag staleness without blanking what is already shown.
package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/teamboard/internal/models"
)

// DefaultInterval is the background poll period.
const DefaultInterval = 15 * time.Second

// Lister fetches the current issue list from the remote store.
type Lister interface {
	List(ctx context.Context) ([]models.Issue, error)
}

// Snapshot is an immutable view of the cache at one point in time.
type Snapshot struct {
	Issues    []models.Issue
	Loaded    bool      // false until the first successful fetch
	FetchedAt time.Time // time of the last successful fetch
	Version   uint64    // bumps on every applied change
	LastErr   error     // error of the most recent refresh, nil after a success
}

// Find returns the issue with id.
func (s Snapshot) Find(id models.ID) (models.Issue, bool) {
	for _, issue := range s.Issues {
		if issue.ID == id {
			return issue, true
		}
	}
	return models.Issue{}, false
}

// Stale reports whether the last refresh failed.
func (s Snapshot) Stale() bool { return s.LastErr != nil }

// FetchError is returned by Refresh when the remote fetch failed.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("refresh issues: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Cache is safe for concurrent use.
type Cache struct {
	lister    Lister
	logger    *slog.Logger
	now       func() time.Time
	newTicker TickerFunc

	mu   sync.Mutex
	snap Snapshot
	subs map[int]chan Snapshot
	next int
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for refresh outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock replaces time.Now, which stamps FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// TickerFunc starts a periodic tick source and returns its channel and a
// stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// WithTicker replaces the ticker that paces Run, so tests can tick by hand.
func WithTicker(fn TickerFunc) Option {
	return func(c *Cache) { c.newTicker = fn }
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// New returns an empty cache backed by lister.
func New(lister Lister, opts ...Option) *Cache {
	c := &Cache{
		lister:    lister,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		newTicker: realTicker,
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the latest snapshot.
func (c *Cache) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Refresh fetches the issue list and installs it. Concurrent refreshes are
// not sequenced: whichever response is applied last wins.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	issues, err := c.lister.List(ctx)

	c.mu.Lock()
	if err != nil {
		c.snap.LastErr = err
		c.snap.Version++
		snap := c.snap
		c.publishLocked(snap)
		c.mu.Unlock()

		c.logger.Warn("issue refresh failed; keeping previous snapshot",
			"error", err,
			"cached", len(snap.Issues),
		)
		return snap, &FetchError{Err: err}
	}

	c.snap = Snapshot{
		Issues:    dedupe(issues),
		Loaded:    true,
		FetchedAt: c.now(),
		Version:   c.snap.Version + 1,
	}
	snap := c.snap
	c.publishLocked(snap)
	c.mu.Unlock()

	c.logger.Debug("issue refresh", "issues", len(snap.Issues), "version", snap.Version)
	return snap, nil
}

// Run refreshes immediately and then every interval until ctx is done.
// Failures are logged and published; they never stop the loop.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	_, _ = c.Refresh(ctx)

	ticks, stop := c.newTicker(interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			_, _ = c.Refresh(ctx)
		}
	}
}

// Subscribe returns a channel that receives every snapshot change. The
// channel holds at most one pending snapshot; a slow reader sees only the
// latest. cancel stops delivery and closes the channel.
func (c *Cache) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	c.next++
	ch := make(chan Snapshot, 1)
	c.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
	return ch, cancel
}

func (c *Cache) publishLocked(snap Snapshot) {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// dedupe keeps one issue per id. The last record wins but keeps the
// position of the first.
func dedupe(issues []models.Issue) []models.Issue {
	out := make([]models.Issue, 0, len(issues))
	pos := make(map[models.ID]int, len(issues))
	for _, issue := range issues {
		if i, ok := pos[issue.ID]; ok {
			out[i] = issue
			continue
		}
		pos[issue.ID] = len(out)
		out = append(out, issue)
	}
	return out
}
