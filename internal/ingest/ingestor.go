// Package ingest buffers validated events and flushes them through the
// rollup aggregator into a storage sink.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sitepulse/analytics-api/internal/domain"
	"github.com/sitepulse/analytics-api/internal/platform/logger"
	"github.com/sitepulse/analytics-api/internal/rollup"
)

// Sink receives one drained batch: the validated events plus the rollups
// aggregated from them. batchID identifies the flush for bookkeeping.
type Sink interface {
	StoreBatch(ctx context.Context, batchID string, events []domain.Event, rollups []rollup.Rollup) error
}

type Ingestor struct {
	queue        chan domain.Event
	sink         Sink
	log          *logger.Logger
	batchMaxSize int
	batchMaxWait time.Duration
}

func NewIngestor(sink Sink, log *logger.Logger, queueMaxSize, batchMaxSize int, batchMaxWait time.Duration) *Ingestor {
	return &Ingestor{
		queue:        make(chan domain.Event, queueMaxSize),
		sink:         sink,
		log:          log,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
	}
}

func (ig *Ingestor) Start(ctx context.Context) {
	go func() {
		batch := make([]domain.Event, 0, ig.batchMaxSize)
		t := time.NewTimer(ig.batchMaxWait)
		defer t.Stop()

		resetTimer := func() {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(ig.batchMaxWait)
		}

		flush := func() {
			if len(batch) == 0 {
				resetTimer()
				return
			}
			ig.flush(ctx, batch)
			batch = batch[:0]
			resetTimer()
		}

		for {
			select {
			case <-ctx.Done():
				flush()
				return
			case ev := <-ig.queue:
				batch = append(batch, ev)
				if len(batch) >= ig.batchMaxSize {
					flush()
				}
			case <-t.C:
				flush()
			}
		}
	}()
}

// flush aggregates one drained batch and hands the result to the sink.
// The aggregator is total over validated input, so a panic here means an
// unvalidated event reached it: a programming error, fatal to this batch
// only, logged distinctly from per-event validation rejects.
func (ig *Ingestor) flush(ctx context.Context, batch []domain.Event) {
	batchID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			ig.log.Error("aggregation fault, batch dropped",
				"stage", "aggregate", "batch_id", batchID, "size", len(batch), "panic", r)
		}
	}()

	rollups := rollup.Aggregate(batch)
	if err := ig.sink.StoreBatch(ctx, batchID, batch, rollups); err != nil {
		ig.log.Error("batch store failed",
			"stage", "store", "batch_id", batchID, "size", len(batch), "err", err)
		return
	}
	ig.log.Info("batch flushed",
		"batch_id", batchID, "events", len(batch), "rollups", len(rollups))
}

// Enqueue hands one validated event to the worker; false means the queue
// is full and the caller should shed load.
func (ig *Ingestor) Enqueue(ev domain.Event) bool {
	select {
	case ig.queue <- ev:
		return true
	default:
		return false
	}
}
