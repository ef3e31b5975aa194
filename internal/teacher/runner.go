package teacher

import (
	"context"
	"fmt"

	"github.com/fitsenseai/distill/internal/logging"
	"github.com/fitsenseai/distill/internal/query"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner fans queries out over a bounded worker pool and persists the
// resulting run through a Store. Pool size respects provider rate limits;
// each call is independently retried and timed out, so one query's failure
// never blocks another's.
type Runner struct {
	client  *Client
	store   *Store
	workers int
	maxQ    int
	log     *logging.Logger
}

// NewRunner builds a runner around client and store.
func NewRunner(client *Client, store *Store, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.NewNop()
	}
	workers := client.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		client:  client,
		store:   store,
		workers: workers,
		maxQ:    client.cfg.MaxQueries,
		log:     log,
	}
}

// Run captures one terminal record per query and writes the run's
// artifacts. Record order matches query order regardless of completion
// order, keeping artifacts deterministic. Cancellation aborts outstanding
// work but leaves already-written artifacts untouched.
func (r *Runner) Run(ctx context.Context, runID, sourceQueryRunID string, queries []query.SyntheticQuery) (*RunSummary, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries to run")
	}
	if r.maxQ > 0 && len(queries) > r.maxQ {
		r.log.Info(ctx, "capping query count", zap.Int("max_queries", r.maxQ), zap.Int("total", len(queries)))
		queries = queries[:r.maxQ]
	}

	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithStage(ctx, "teacher")
	r.log.Info(ctx, "starting teacher capture",
		zap.Int("queries", len(queries)),
		zap.Int("workers", r.workers),
		zap.String("provider", r.client.provider.Name()))

	records := make([]OutputRecord, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Invoke never fails; every outcome lands in the record.
			records[i] = r.client.Invoke(gctx, q, runID)
			records[i].SourceQueryRunID = sourceQueryRunID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("teacher run cancelled: %w", err)
	}

	summary, err := r.store.WriteRun(runID, sourceQueryRunID, r.client.cfg.ModelName, records)
	if err != nil {
		return nil, fmt.Errorf("persist teacher run: %w", err)
	}

	r.log.Info(ctx, "teacher capture complete",
		zap.Int("success", summary.SuccessCount),
		zap.Int("failed", summary.FailedCount),
		zap.Int("rejected", summary.RejectedCount))
	return summary, nil
}
