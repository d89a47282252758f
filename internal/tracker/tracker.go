package tracker

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/levyline/taxflow/internal/store"
	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
	"github.com/levyline/taxflow/pkg/util"
)

type (
	// Tracker records execution state. It caches recent executions in
	// memory in front of a durable execution store and archives terminal
	// executions when an archive is configured
	Tracker struct {
		store   store.ExecutionStore
		archive Archive
		cache   *util.LRUCache[api.ExecutionID, *api.Execution]
		now     func() time.Time
		locks   [lockStripes]sync.Mutex
	}

	// Archive receives executions once they reach a terminal status and
	// serves them after they have left the execution store
	Archive interface {
		Put(ctx context.Context, ex *api.Execution) error
		Get(ctx context.Context, id api.ExecutionID) (*api.Execution, error)
	}

	// Option configures a Tracker
	Option func(*Tracker)
)

const lockStripes = 64

// WithArchive stores terminal executions in a and serves lookups that miss
// the execution store from it
func WithArchive(a Archive) Option {
	return func(t *Tracker) {
		t.archive = a
	}
}

// WithClock replaces the time source used for execution timestamps
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a tracker over st, caching at most cacheSize executions
func New(st store.ExecutionStore, cacheSize int, opts ...Option) *Tracker {
	t := &Tracker{
		store: st,
		cache: util.NewLRUCache[api.ExecutionID, *api.Execution](cacheSize),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create records a new running execution of workflow positioned at first
func (t *Tracker) Create(
	ctx context.Context, workflow api.WorkflowName, input api.Args,
	first api.StepName,
) (*api.Execution, error) {
	ex := api.NewExecution(
		api.NewExecutionID(), workflow, input, first, t.now(),
	)
	if err := t.store.CreateExecution(ctx, ex); err != nil {
		return nil, err
	}
	t.cache.Put(ex.ID, ex)
	return ex.Clone(), nil
}

// Update applies updates to the execution and persists the result.
// Updates to the same execution are serialized. An unknown id fails with
// ErrExecutionNotFound
func (t *Tracker) Update(
	ctx context.Context, id api.ExecutionID, updates ...api.ExecutionUpdate,
) (*api.Execution, error) {
	mu := t.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	current, err := t.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Apply(updates...)
	if err := t.store.UpdateExecution(ctx, next); err != nil {
		if errors.Is(err, api.ErrExecutionNotFound) {
			t.cache.Remove(id)
		}
		return nil, err
	}
	t.cache.Put(id, next)

	if next.IsTerminal() && !current.IsTerminal() {
		t.archiveExecution(ctx, next)
	}
	return next.Clone(), nil
}

// Get returns the execution with the given id from the cache, the store, or
// the archive, in that order
func (t *Tracker) Get(
	ctx context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	if ex, ok := t.cache.Peek(id); ok {
		return ex.Clone(), nil
	}

	ex, err := t.store.GetExecution(ctx, id)
	if err == nil {
		t.cache.Put(id, ex)
		return ex.Clone(), nil
	}
	if !errors.Is(err, api.ErrExecutionNotFound) || t.archive == nil {
		return nil, err
	}
	return t.archive.Get(ctx, id)
}

func (t *Tracker) load(
	ctx context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	if ex, ok := t.cache.Peek(id); ok {
		return ex, nil
	}
	return t.store.GetExecution(ctx, id)
}

func (t *Tracker) archiveExecution(ctx context.Context, ex *api.Execution) {
	if t.archive == nil {
		return
	}
	if err := t.archive.Put(ctx, ex); err != nil {
		slog.Error("Failed to archive execution",
			log.ExecutionID(ex.ID),
			log.Error(err))
	}
}

func (t *Tracker) lockFor(id api.ExecutionID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &t.locks[h.Sum32()%lockStripes]
}
