package miner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// #region plan

// Plan applies the limit to the head of ids and drops repeated IDs, keeping
// first-seen order.
func Plan(ids []string, limit int) []string {
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// #endregion plan

// #region run

// Run processes ids on a bounded pool. Per-record problems are folded into the
// summary; the returned error is only the context's, once cancelled.
func (w *Worker) Run(ctx context.Context, ids []string) (Summary, error) {
	ids = Plan(ids, w.cfg.Limit)
	workers := w.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	log.Printf("[MINER] run %s: %d records, %d workers, %d already indexed",
		w.deps.RunID, len(ids), workers, w.deps.Ledger.Len())

	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, id := range ids {
		id := id // per-iteration copy (go 1.21 loop semantics)
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := w.Process(gctx, id)
			if err != nil && gctx.Err() != nil {
				return nil // in-flight record, retried next run
			}

			mu.Lock()
			defer mu.Unlock()
			sum.Processed++
			switch {
			case err != nil:
				sum.Failed++
				sum.LastError = err
				log.Printf("[MINER] %s: %v", id, err)
			case res.Outcome == OutcomeSuccess:
				sum.Succeeded++
			case res.Outcome == OutcomeFailed:
				sum.Failed++
				sum.LastError = res.Diagnostics.Err
			default:
				sum.Skipped++
			}
			if sum.Processed%50 == 0 {
				log.Printf("[MINER] progress: %d/%d (ok=%d failed=%d skipped=%d)",
					sum.Processed, len(ids), sum.Succeeded, sum.Failed, sum.Skipped)
			}
			return nil
		})
	}
	// Per-record failures land in the summary, so only a worker bug surfaces here.
	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// #endregion run

// #region summary

// String renders the end-of-run line.
func (s Summary) String() string {
	last := "none"
	if s.LastError != nil {
		last = s.LastError.Error()
	}
	return fmt.Sprintf("processed=%d succeeded=%d failed=%d skipped=%d last_error=%s",
		s.Processed, s.Succeeded, s.Failed, s.Skipped, last)
}

// IsCancelled reports whether err came from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// #endregion summary
