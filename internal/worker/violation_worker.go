package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWriter persists violation events.
type ViolationWriter interface {
	CopyBatch(ctx context.Context, events []model.ViolationEvent) error
	Insert(ctx context.Context, e model.ViolationEvent) error
}

// ViolationWorker drains the violation queue into PostgreSQL in batches.
type ViolationWorker struct {
	repo ViolationWriter
	rdb  *redis.Client
	log  zerolog.Logger

	// requeueBackoff throttles the loop while the database is down.
	requeueBackoff time.Duration
}

// NewViolationWorker creates a new ViolationWorker.
func NewViolationWorker(repo ViolationWriter, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		repo:           repo,
		rdb:            rdb,
		log:            log.With().Str("component", "violation_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]model.ViolationEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. BLPop blocks for PollTimeout and returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var e model.ViolationEvent
		if err := json.Unmarshal([]byte(result[1]), &e); err != nil {
			// Malformed JSON can never succeed. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation event")
			continue
		}
		buffer = append(buffer, e)
	}
}

// flushSafe attempts a COPY, then row-by-row inserts, then requeues what is left.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ViolationEvent) {
	err := w.repo.CopyBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Violation batch persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")

	if failed := w.fallbackInsert(ctx, batch); len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

// fallbackInsert returns the events that could not be written.
func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.ViolationEvent) []model.ViolationEvent {
	var failed []model.ViolationEvent
	for _, e := range batch {
		if err := w.repo.Insert(ctx, e); err != nil {
			w.log.Error().
				Err(err).
				Int("student_id", e.StudentID).
				Str("exam_id", e.ExamID.String()).
				Msg("Insert failed, requeueing")
			failed = append(failed, e)
		}
	}
	return failed
}

func (w *ViolationWorker) requeue(ctx context.Context, items []model.ViolationEvent) {
	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue violation events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed violation events")
	time.Sleep(w.requeueBackoff)
}

func (w *ViolationWorker) shutdown(buffer []model.ViolationEvent) {
	w.log.Info().Int("pending", len(buffer)).Msg("ViolationWorker stopping, flushing remaining buffer")
	if len(buffer) == 0 {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}
