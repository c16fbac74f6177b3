package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/captionrelay/core/logger"
)

// Report tallies a batch commit.
type Report struct {
	BatchID   string
	Total     int
	Succeeded int
	Failed    int
	// Skipped counts items never attempted because ctx ended.
	Skipped  int
	Failures []Failure
}

// Failure records a failed item and its 1-based position in the batch.
type Failure struct {
	Position int
	Item     Item
	Result   Result
}

// ProgressFunc is called after each item of a batch.
type ProgressFunc func(position int, item Item, res Result)

// RelayBatch relays items strictly in order, one at a time. A failed item does
// not stop the ones after it. Processing stops early only when ctx ends.
func (e *Engine) RelayBatch(ctx context.Context, items []Item, rule Rule, dest Destination, onItem ProgressFunc) Report {
	rep := Report{BatchID: uuid.NewString(), Total: len(items)}
	if len(items) == 0 {
		return rep
	}

	ctx = logger.WithBatch(ctx, rep.BatchID)
	start := time.Now()
	logger.Info(ctx, "relay", "batch.start",
		slog.String("status", "ok"),
		slog.String("destination", dest.String()),
		slog.Int("total", rep.Total),
	)

	for i, item := range items {
		if ctx.Err() != nil {
			rep.Skipped = len(items) - i
			break
		}
		res := e.Relay(ctx, item, rule, dest)
		if res.Outcome == Success {
			rep.Succeeded++
		} else {
			rep.Failed++
			rep.Failures = append(rep.Failures, Failure{Position: i + 1, Item: item, Result: res})
		}
		if onItem != nil {
			onItem(i+1, item, res)
		}
	}

	status := "ok"
	if rep.Failed > 0 || rep.Skipped > 0 {
		status = "fail"
	}
	logger.Info(ctx, "relay", "batch.done",
		slog.String("status", status),
		slog.String("destination", dest.String()),
		slog.Int("total", rep.Total),
		slog.Int("succeeded", rep.Succeeded),
		slog.Int("failed", rep.Failed),
		slog.Int("skipped", rep.Skipped),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
	if e.opts.Observer != nil {
		e.opts.Observer.BatchFinished(rep)
	}
	return rep
}
