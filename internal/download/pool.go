package download

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ytshelf/ytshelf-go/internal/library"
	"github.com/ytshelf/ytshelf-go/internal/source"
)

// Job is one acquisition request: an entry and the album it should land
// in (empty means unsorted).
type Job struct {
	SourceName  string
	Entry       source.Entry
	TargetAlbum string
}

// JobResult is the outcome of one processed job
type JobResult struct {
	Job  Job
	Item *library.Item
	Err  error
}

// Acquirer performs one acquisition
type Acquirer interface {
	Acquire(ctx context.Context, entry source.Entry, targetAlbum string) (*library.Item, error)
}

// Pool runs acquisitions on a bounded set of workers. The per-video-id
// locking inside the engine guarantees two jobs for the same song never
// download concurrently.
type Pool struct {
	workers  int
	acquirer Acquirer
	logger   *zap.Logger
}

// NewPool creates a pool with the given worker count
func NewPool(workers int, acquirer Acquirer, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		workers:  workers,
		acquirer: acquirer,
		logger:   logger,
	}
}

// Workers returns the pool's worker count
func (p *Pool) Workers() int {
	return p.workers
}

// Process runs the given jobs and returns the results of all completed
// ones. onDone, when set, is invoked once per completed job from the
// collecting goroutine, never concurrently. Cancellation is honored at
// job boundaries: in-flight acquisitions finish (or hit their own
// timeout), pending jobs are not started and yield no result.
func (p *Pool) Process(ctx context.Context, jobs []Job, onDone func(JobResult)) []JobResult {
	if len(jobs) == 0 {
		return nil
	}

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan Job, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	resultCh := make(chan JobResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if ctx.Err() != nil {
					return
				}
				item, err := p.acquirer.Acquire(ctx, job.Entry, job.TargetAlbum)
				resultCh <- JobResult{Job: job, Item: item, Err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]JobResult, 0, len(jobs))
	for res := range resultCh {
		if onDone != nil {
			onDone(res)
		}
		results = append(results, res)
	}

	return results
}
