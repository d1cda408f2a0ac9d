// Package pipeline turns one logical change to an issue into exactly one
// gateway call, then re-reads the issue list on success.
//
// Mutations never write into the cache. After a successful call the
// pipeline asks the cache to refetch; after a failed call it leaves the
// cache alone and hands the gateway's error back unchanged.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/teamboard/internal/cache"
	"github.com/joescharf/teamboard/internal/gateway"
	"github.com/joescharf/teamboard/internal/models"
)

// ErrBusy is returned when another mutation on the same issue is in flight.
var ErrBusy = errors.New("another change to this issue is still in progress")

// Kind is the type of change a Mutation makes.
type Kind int

const (
	KindCreate Kind = iota + 1
	KindUpdate
	KindDelete
	// KindMove changes only the status. It is sent as a full update built
	// from the cached issue.
	KindMove
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindMove:
		return "move"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Mutation describes one pending change.
type Mutation struct {
	Kind   Kind
	Target models.ID     // empty for create
	Fields models.Fields // create and update
	Status models.Status // move
}

// Create builds a create mutation.
func Create(f models.Fields) Mutation { return Mutation{Kind: KindCreate, Fields: f} }

// Update builds a full-field update of id.
func Update(id models.ID, f models.Fields) Mutation {
	return Mutation{Kind: KindUpdate, Target: id, Fields: f}
}

// Delete builds a delete of id.
func Delete(id models.ID) Mutation { return Mutation{Kind: KindDelete, Target: id} }

// Move builds a status change of id.
func Move(id models.ID, to models.Status) Mutation {
	return Mutation{Kind: KindMove, Target: id, Status: to}
}

// Result is the outcome of a successful Submit.
type Result struct {
	Kind    Kind
	Issue   *models.Issue // the store's copy after create/update/move
	Deleted models.ID     // set after delete
	// Snapshot is the cache after the follow-up refresh. When that refresh
	// fails RefreshErr is set and Snapshot still holds the previous issues;
	// the mutation itself succeeded.
	Snapshot   cache.Snapshot
	RefreshErr error
}

// Gateway is the subset of the remote store the pipeline writes through.
type Gateway interface {
	Create(ctx context.Context, f models.Fields) (*models.Issue, error)
	Update(ctx context.Context, id models.ID, f models.Fields) (*models.Issue, error)
	Delete(ctx context.Context, id models.ID) error
}

// Cache is what the pipeline needs from the issue cache.
type Cache interface {
	Current() cache.Snapshot
	Refresh(ctx context.Context) (cache.Snapshot, error)
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	gw     Gateway
	cache  Cache
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[models.ID]struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for submit outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New returns a pipeline writing through gw and refreshing c.
func New(gw Gateway, c Cache, opts ...Option) *Pipeline {
	p := &Pipeline{
		gw:       gw,
		cache:    c,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		inflight: make(map[models.ID]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InFlight reports whether a mutation on id is currently running.
func (p *Pipeline) InFlight(id models.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[id]
	return ok
}

// Submit performs m. Local preconditions are checked first and never reach
// the gateway.
func (p *Pipeline) Submit(ctx context.Context, m Mutation) (*Result, error) {
	if err := validate(m); err != nil {
		return nil, err
	}

	if !m.Target.IsZero() {
		if !p.acquire(m.Target) {
			p.logger.Info("mutation rejected", "kind", m.Kind, "target", m.Target, "reason", "busy")
			return nil, ErrBusy
		}
		defer p.release(m.Target)
	}

	start := time.Now()
	res, err := p.call(ctx, m)
	if err != nil {
		p.logger.Warn("mutation failed",
			"kind", m.Kind,
			"target", m.Target,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	res.Snapshot, res.RefreshErr = p.cache.Refresh(ctx)
	p.logger.Info("mutation applied",
		"kind", m.Kind,
		"target", m.Target,
		"refreshed", res.RefreshErr == nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) call(ctx context.Context, m Mutation) (*Result, error) {
	res := &Result{Kind: m.Kind}
	switch m.Kind {
	case KindCreate:
		issue, err := p.gw.Create(ctx, m.Fields)
		if err != nil {
			return nil, err
		}
		res.Issue = issue
	case KindUpdate:
		issue, err := p.gw.Update(ctx, m.Target, m.Fields)
		if err != nil {
			return nil, err
		}
		res.Issue = issue
	case KindMove:
		current, ok := p.cache.Current().Find(m.Target)
		if !ok {
			return nil, &gateway.Error{
				Op:      fmt.Sprintf("move issue %s", m.Target),
				Kind:    gateway.KindNotFound,
				Message: "issue is not in the current board",
			}
		}
		f := current.Fields
		f.Status = m.Status
		issue, err := p.gw.Update(ctx, m.Target, f)
		if err != nil {
			return nil, err
		}
		res.Issue = issue
	case KindDelete:
		if err := p.gw.Delete(ctx, m.Target); err != nil {
			return nil, err
		}
		res.Deleted = m.Target
	}
	return res, nil
}

func validate(m Mutation) error {
	switch m.Kind {
	case KindCreate:
		return m.Fields.Validate()
	case KindUpdate:
		if m.Target.IsZero() {
			return errors.New("update needs a target issue")
		}
		return m.Fields.Validate()
	case KindMove:
		if m.Target.IsZero() {
			return errors.New("move needs a target issue")
		}
		if !m.Status.Valid() {
			return fmt.Errorf("invalid status %q", m.Status)
		}
		return nil
	case KindDelete:
		if m.Target.IsZero() {
			return errors.New("delete needs a target issue")
		}
		return nil
	}
	return fmt.Errorf("unknown mutation kind %d", int(m.Kind))
}

func (p *Pipeline) acquire(id models.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Pipeline) release(id models.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}
