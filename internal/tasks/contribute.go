package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ContributionSource lists the load records eligible for bulk contribution.
type ContributionSource interface {
	FetchAllForContribution(ctx context.Context) ([]models.LoadRecord, error)
}

// ContributeOpts contains configuration for bulk community contribution.
type ContributeOpts struct {
	ChunkSize  int           // Records submitted per chunk (default: 1000)
	Pause      time.Duration // Minimum gap between chunks (default: 5s)
	NumWorkers int           // Concurrent submissions within a chunk (default: 5)
}

// ContributeResult summarises a bulk contribution run.
type ContributeResult struct {
	Total     int // records read from the cache
	Eligible  int // records that passed the filters
	Submitted int
	Failed    int
	Chunks    int
	Errors    []error
}

// ContributeAll submits every eligible cached load result to the community cache.
//
// Local queries, provider URIs and errored or empty results are skipped. Records are sent in
// chunks paced by a rate limiter; a failed submission is recorded and the run continues.
func ContributeAll(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	store ContributionSource,
	community Contributor,
	opts ContributeOpts,
) (*ContributeResult, error) {
	if store == nil || community == nil {
		return nil, fmt.Errorf("%w: cache store and community client are required", shared.ErrServiceUnavailable)
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.Pause <= 0 {
		opts.Pause = 5 * time.Second
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}

	records, err := store.FetchAllForContribution(ctx)
	if err != nil {
		return nil, err
	}

	type job struct {
		query  models.Query
		result models.LoadResult
	}
	jobs := make([]job, 0, len(records))
	for _, rec := range records {
		q := models.NormalizeQuery(rec.Query)
		if !q.Valid() || q.IsLocal() || q.IsProviderURI() || !rec.Result.Cacheable() {
			continue
		}
		jobs = append(jobs, job{query: q, result: rec.Result})
	}

	result := &ContributeResult{Total: len(records), Eligible: len(jobs)}
	limiter := rate.NewLimiter(rate.Every(opts.Pause), 1)

	var mu sync.Mutex
	for start := 0; start < len(jobs); start += opts.ChunkSize {
		if err := limiter.Wait(ctx); err != nil {
			return result, shared.ClassifyNetworkError(err)
		}

		chunk := jobs[start:min(start+opts.ChunkSize, len(jobs))]
		var g errgroup.Group
		g.SetLimit(opts.NumWorkers)
		for _, j := range chunk {
			g.Go(func() error {
				err := community.Contribute(ctx, j.result, j.query)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					result.Errors = append(result.Errors, fmt.Errorf("%s: %w", j.query.Canonical, err))
					return nil
				}
				result.Submitted++
				return nil
			})
		}
		_ = g.Wait()

		result.Chunks++
		sendProgress(prog, contributingUpdate(result.Submitted+result.Failed, result.Eligible))
	}
	return result, nil
}
