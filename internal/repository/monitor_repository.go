package repository

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-portal/internal/config"
)

// MonitorRepository provides data access for the live proctoring monitor.
// It combines PostgreSQL (submissions, violations) and Redis (live sessions
// and autosaved answers).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// GetSubmittedCount returns how many students have submitted the exam.
func (r *MonitorRepository) GetSubmittedCount(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE exam_id = $1`, examID).Scan(&n)
	return n, err
}

// GetLiveAnsweredCounts returns the autosaved answer count of every student
// with an open proctored session.
func (r *MonitorRepository) GetLiveAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	eid := examID.String()
	members, err := r.rdb.SMembers(ctx, config.CacheKey.ExamLiveStudentsKey(eid)).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[int]int64, len(members))
	if len(members) == 0 {
		return result, nil
	}

	ids := make([]int, 0, len(members))
	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(members))
	for _, m := range members {
		sid, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		ids = append(ids, sid)
		cmds = append(cmds, pipe.HLen(ctx, config.CacheKey.StudentAnswersKey(eid, sid)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	for i, cmd := range cmds {
		result[ids[i]] = cmd.Val()
	}
	return result, nil
}

// GetViolationCounts returns the number of violations recorded for each student in the given exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM violation_events
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}

	return counts, rows.Err()
}
