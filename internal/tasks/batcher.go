package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
	"golang.org/x/sync/errgroup"
)

// flushConcurrency caps the fan-out of a single task kind during a flush.
const flushConcurrency = 8

// TaskKind identifies the three deferred operations a request can schedule.
type TaskKind int

const (
	KindInsert TaskKind = iota
	KindUpdate
	KindContribute
)

func (k TaskKind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindContribute:
		return "contribute"
	default:
		return ""
	}
}

// Task is a deferred write. Implementations are [InsertTask], [UpdateTask] and [ContributeTask].
type Task interface {
	Kind() TaskKind
	isTask()
}

// InsertTask upserts records into one cache table.
type InsertTask struct {
	Table   models.Table
	Records []models.Record
}

// UpdateTask bumps last_fetched for one key.
type UpdateTask struct {
	Table models.Table
	Key   string
}

// ContributeTask submits a provider result to the community cache.
type ContributeTask struct {
	Result models.LoadResult
	Query  models.Query
}

func (InsertTask) Kind() TaskKind     { return KindInsert }
func (UpdateTask) Kind() TaskKind     { return KindUpdate }
func (ContributeTask) Kind() TaskKind { return KindContribute }

func (InsertTask) isTask()     {}
func (UpdateTask) isTask()     {}
func (ContributeTask) isTask() {}

// PendingTaskSet holds the tasks of one request, in append order per kind.
type PendingTaskSet struct {
	Inserts     []InsertTask
	Updates     []UpdateTask
	Contributes []ContributeTask
}

// Len returns the number of queued tasks.
func (s *PendingTaskSet) Len() int {
	return len(s.Inserts) + len(s.Updates) + len(s.Contributes)
}

func (s *PendingTaskSet) add(t Task) {
	switch t := t.(type) {
	case InsertTask:
		s.Inserts = append(s.Inserts, t)
	case UpdateTask:
		s.Updates = append(s.Updates, t)
	case ContributeTask:
		s.Contributes = append(s.Contributes, t)
	}
}

// TaskError records the failure of one task without affecting the others.
type TaskError struct {
	RequestID string
	Task      Task
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s task for request %s: %v", e.Task.Kind(), e.RequestID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// FlushResult summarises one flush.
type FlushResult struct {
	Executed int
	Errors   []*TaskError
}

// Writer is the subset of the cache store the batcher writes through.
type Writer interface {
	Insert(ctx context.Context, table models.Table, records []models.Record) error
	Update(ctx context.Context, table models.Table, key string) error
}

// Contributor submits results to the community cache.
type Contributor interface {
	Contribute(ctx context.Context, result models.LoadResult, q models.Query) error
}

// Batcher accumulates deferred cache writes and community contributions per request.
//
// The mutex guards only the pending map; I/O launched by a flush runs outside of it.
type Batcher struct {
	mu      sync.Mutex
	pending map[string]*PendingTaskSet

	store     Writer
	community Contributor
	logger    *log.Logger
}

// NewBatcher creates a Batcher. A nil community drops contribute tasks at flush time.
func NewBatcher(store Writer, community Contributor, logger *log.Logger) *Batcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Batcher{
		pending:   make(map[string]*PendingTaskSet),
		store:     store,
		community: community,
		logger:    shared.WithLogger(logger, "component", "batcher"),
	}
}

// Append queues t under requestID, creating the request's set on first use.
func (b *Batcher) Append(requestID string, t Task) {
	if t == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.pending[requestID]
	if !ok {
		set = &PendingTaskSet{}
		b.pending[requestID] = set
	}
	set.add(t)
}

// Pending returns the number of tasks queued for requestID.
func (b *Batcher) Pending(requestID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.pending[requestID]; ok {
		return set.Len()
	}
	return 0
}

// Requests returns the number of request ids with queued tasks.
func (b *Batcher) Requests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush removes and executes the tasks queued for requestID.
func (b *Batcher) Flush(ctx context.Context, requestID string) FlushResult {
	b.mu.Lock()
	set, ok := b.pending[requestID]
	delete(b.pending, requestID)
	b.mu.Unlock()

	if !ok {
		return FlushResult{}
	}
	return b.run(ctx, map[string]*PendingTaskSet{requestID: set})
}

// FlushAll drains every pending request as one batch.
func (b *Batcher) FlushAll(ctx context.Context) FlushResult {
	b.mu.Lock()
	sets := b.pending
	b.pending = make(map[string]*PendingTaskSet)
	b.mu.Unlock()

	if len(sets) == 0 {
		return FlushResult{}
	}
	return b.run(ctx, sets)
}

// run executes inserts, then updates, then contributions. Tasks of one kind run concurrently.
func (b *Batcher) run(ctx context.Context, sets map[string]*PendingTaskSet) FlushResult {
	var (
		mu     sync.Mutex
		result FlushResult
	)
	record := func(id string, t Task, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Executed++
		if err != nil {
			result.Errors = append(result.Errors, &TaskError{RequestID: id, Task: t, Err: err})
		}
	}

	phase := func(each func(g *errgroup.Group, id string, set *PendingTaskSet)) {
		var g errgroup.Group
		g.SetLimit(flushConcurrency)
		for id, set := range sets {
			each(&g, id, set)
		}
		_ = g.Wait()
	}

	phase(func(g *errgroup.Group, id string, set *PendingTaskSet) {
		for _, t := range set.Inserts {
			g.Go(func() error {
				record(id, t, b.store.Insert(ctx, t.Table, t.Records))
				return nil
			})
		}
	})

	phase(func(g *errgroup.Group, id string, set *PendingTaskSet) {
		for _, t := range set.Updates {
			g.Go(func() error {
				record(id, t, b.store.Update(ctx, t.Table, t.Key))
				return nil
			})
		}
	})

	phase(func(g *errgroup.Group, id string, set *PendingTaskSet) {
		if b.community == nil {
			return
		}
		for _, t := range set.Contributes {
			g.Go(func() error {
				record(id, t, b.community.Contribute(ctx, t.Result, t.Query))
				return nil
			})
		}
	})

	for _, err := range result.Errors {
		b.logger.Warn("deferred task failed", "request", err.RequestID, "kind", err.Task.Kind(), "err", err.Err)
	}
	b.logger.Debug("flushed", "requests", len(sets), "executed", result.Executed, "failed", len(result.Errors))
	return result
}

// Request scopes the deferred writes of one caller-level operation.
type Request struct {
	ID string
}

// NewRequest returns a Request with a fresh id.
func NewRequest() *Request {
	return &Request{ID: shared.GenerateID()}
}
