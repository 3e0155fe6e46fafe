package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/post-scraper/internal/domain"
	"github.com/user/post-scraper/internal/fetcher"
	"github.com/user/post-scraper/internal/monitoring"
)

// DefaultConcurrencyLimit is the number of fetches allowed in flight.
const DefaultConcurrencyLimit = 50

// BatchOptions configures a BatchRunner.
type BatchOptions struct {
	ConcurrencyLimit int
	// TolerateFailures keeps a batch going past failed fetches. Failed tasks
	// keep a nil Document and are listed in the report.
	TolerateFailures bool
}

// BatchReport summarizes a finished batch.
type BatchReport struct {
	Fetched  int
	Failures []domain.TaskFailure
}

// BatchRunner fetches a batch of tasks with bounded concurrency.
type BatchRunner struct {
	fetcher fetcher.Fetcher
	opts    BatchOptions
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func NewBatchRunner(f fetcher.Fetcher, opts BatchOptions, m *monitoring.Metrics, l *zap.Logger) *BatchRunner {
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	return &BatchRunner{
		fetcher: f,
		opts:    opts,
		metrics: m,
		logger:  l,
	}
}

// Run fetches every task and stores the body in its Document. It returns
// once every started fetch has finished.
//
// By default the first failure cancels the batch: tasks that have not
// started are never fetched and the error is returned.
func (r *BatchRunner) Run(ctx context.Context, phase domain.Phase, tasks []*domain.FetchTask) (BatchReport, error) {
	log := r.logger.With(zap.String("phase", string(phase)), zap.Int("tasks", len(tasks)))
	log.Info("batch started", zap.Int("concurrency", r.opts.ConcurrencyLimit))
	start := time.Now()

	var (
		mu     sync.Mutex
		report BatchReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.ConcurrencyLimit)

	for _, task := range tasks {
		// Go blocks while the pool is full, so this is where queued tasks
		// notice an earlier failure
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			body, err := r.fetch(gctx, phase, task.URL)
			if err != nil {
				if !r.opts.TolerateFailures {
					return err
				}
				log.Warn("skipping failed fetch", zap.String("url", task.URL), zap.Error(err))
				mu.Lock()
				report.Failures = append(report.Failures, domain.TaskFailure{URL: task.URL, Reason: err.Error()})
				mu.Unlock()
				return nil
			}
			task.Document = body
			mu.Lock()
			report.Fetched++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("batch aborted", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return report, fmt.Errorf("%s batch: %w", phase, err)
	}
	// A cancelled parent stops the loop without any task reporting an error
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("%s batch: %w", phase, err)
	}

	log.Info("batch finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

func (r *BatchRunner) fetch(ctx context.Context, phase domain.Phase, url string) ([]byte, error) {
	r.metrics.FetchesInFlight.Inc()
	defer r.metrics.FetchesInFlight.Dec()

	start := time.Now()
	body, err := r.fetcher.Fetch(ctx, url)
	r.metrics.ObserveFetch(string(phase), time.Since(start), err)
	return body, err
}
