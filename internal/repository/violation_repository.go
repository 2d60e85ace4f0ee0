package repository

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-portal/internal/model"
)

var violationCopyColumns = []string{"exam_id", "student_id", "kind", "running_count", "metadata", "occurred_at"}

// ViolationRepository persists the proctoring audit trail.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// CopyBatch bulk-inserts events with the COPY protocol.
func (r *ViolationRepository) CopyBatch(ctx context.Context, events []model.ViolationEvent) error {
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violation_events"},
		violationCopyColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]interface{}, error) {
			e := events[i]
			return []interface{}{e.ExamID, e.StudentID, string(e.Kind), e.RunningCount, e.Metadata, e.Timestamp}, nil
		}),
	)
	return err
}

// Insert writes a single event.
func (r *ViolationRepository) Insert(ctx context.Context, e model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violation_events (exam_id, student_id, kind, running_count, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ExamID, e.StudentID, e.Kind, e.RunningCount, e.Metadata, e.Timestamp,
	)
	return err
}

// ListByExam returns an exam's violations, newest first. studentID of 0
// returns every student.
func (r *ViolationRepository) ListByExam(ctx context.Context, examID uuid.UUID, studentID, limit, offset int) ([]model.ViolationEvent, int, error) {
	where := ` WHERE exam_id = $1`
	args := []interface{}{examID}
	if studentID > 0 {
		where += ` AND student_id = $2`
		args = append(args, studentID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM violation_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, exam_id, student_id, kind, running_count, metadata, occurred_at
	          FROM violation_events` + where +
		` ORDER BY occurred_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.ViolationEvent
	for rows.Next() {
		var e model.ViolationEvent
		if err := rows.Scan(&e.ID, &e.ExamID, &e.StudentID, &e.Kind, &e.RunningCount, &e.Metadata, &e.Timestamp); err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}
