package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
)

// RedisPublisher publishes monitor events on the exam's Redis channel.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher creates a new RedisPublisher.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish serializes e and publishes it to the exam's monitor channel.
func (p *RedisPublisher) Publish(ctx context.Context, e model.MonitorEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	return p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(e.ExamID), data).Err()
}

// MonitorService backs the admin live proctoring view.
type MonitorService struct {
	monitorRepo  *repository.MonitorRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(
	monitorRepo *repository.MonitorRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *MonitorService {
	return &MonitorService{
		monitorRepo:  monitorRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "monitor_service").Logger(),
	}
}

// Snapshot returns live progress and violation counts, fetched concurrently.
// Answered counts are critical, violation counts are best effort.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*model.MonitorState, error) {
	snap := &model.MonitorState{
		Type:            model.MonitorSnapshot,
		ExamID:          examID.String(),
		LiveStudents:    map[int]int64{},
		ViolationCounts: map[int]int64{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.monitorRepo.GetLiveAnsweredCounts(gctx, examID)
		if err != nil {
			return fmt.Errorf("live answered counts: %w", err)
		}
		if counts != nil {
			snap.LiveStudents = counts
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.questionRepo.CountByExam(gctx, examID)
		if err != nil {
			return fmt.Errorf("count questions: %w", err)
		}
		snap.TotalQuestions = n
		return nil
	})
	g.Go(func() error {
		n, err := s.monitorRepo.GetSubmittedCount(gctx, examID)
		if err != nil {
			return fmt.Errorf("submitted count: %w", err)
		}
		snap.SubmittedCount = n
		return nil
	})
	g.Go(func() error {
		counts, err := s.monitorRepo.GetViolationCounts(gctx, examID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Violation counts unavailable")
			return nil
		}
		snap.ViolationCounts = counts
		for _, c := range counts {
			snap.TotalViolations += c
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Subscribe opens a Redis subscription to the exam's monitor channel.
// The caller must close it.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
