package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
)

// artifactJob is one answer-sheet generation request.
type artifactJob struct {
	SubmissionID string `json:"submission_id"`
	Attempt      int    `json:"attempt"`
}

// RedisQueue is the producer side of the background workers.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue creates a new RedisQueue.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// ScheduleArtifact queues answer-sheet generation for a submission.
func (q *RedisQueue) ScheduleArtifact(ctx context.Context, submissionID uuid.UUID) error {
	return q.push(ctx, config.WorkerKey.GenerateArtifactsQueue, artifactJob{SubmissionID: submissionID.String()})
}

// EnqueueViolation queues a violation event for batched persistence.
func (q *RedisQueue) EnqueueViolation(ctx context.Context, e model.ViolationEvent) error {
	return q.push(ctx, config.WorkerKey.PersistViolationsQueue, e)
}

func (q *RedisQueue) push(ctx context.Context, queue string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.RPush(ctx, queue, data).Err()
}
