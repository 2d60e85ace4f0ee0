package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-portal/internal/model"
)

const examColumns = `id, title, description, category, duration_minutes, status,
	college_id, branch, owner_id, scheduled_start, scheduled_end, max_attempts,
	shuffle_questions, proctoring_enabled, max_violations, max_eye_tracking_violations,
	created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// ExamFilter narrows exam listings. Zero values are ignored.
// CollegeID and Branch match exams scoped to that value or left open.
type ExamFilter struct {
	OwnerID   int
	Status    model.ExamStatus
	CollegeID string
	Branch    string
}

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Description, &e.Category, &e.DurationMinutes, &e.Status,
		&e.CollegeID, &e.Branch, &e.OwnerID, &e.ScheduledStart, &e.ScheduledEnd, &e.MaxAttempts,
		&e.ShuffleQuestions, &e.ProctoringEnabled, &e.MaxViolations, &e.MaxEyeTrackingViolations,
		&e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	row := r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	if err := scanExam(row, e); err != nil {
		return nil, mapError(err)
	}
	return e, nil
}

// GetByIDs retrieves several exams at once. Missing ids are skipped.
func (r *ExamRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Exam, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListPaginated retrieves exams matching the filter, newest first.
func (r *ExamRepository) ListPaginated(ctx context.Context, f ExamFilter, limit, offset int) ([]model.Exam, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, cond+" = $"+strconv.Itoa(len(args)))
	}
	// An empty college or branch on the exam means it is open to everyone.
	addScope := func(col string, v interface{}) {
		args = append(args, v)
		conds = append(conds, "("+col+" = '' OR "+col+" = $"+strconv.Itoa(len(args))+")")
	}
	if f.OwnerID > 0 {
		add("owner_id", f.OwnerID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.CollegeID != "" {
		addScope("college_id", f.CollegeID)
	}
	if f.Branch != "" {
		addScope("branch", f.Branch)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	// 1. Get total count
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// 2. Get paginated data
	query := `SELECT ` + examColumns + ` FROM exams` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// ListActive returns all active exams. Used for cache prewarming on startup.
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = $1 ORDER BY created_at DESC`,
		model.ExamStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, category, duration_minutes, status, college_id, branch,
		                    owner_id, scheduled_start, scheduled_end, max_attempts, shuffle_questions,
		                    proctoring_enabled, max_violations, max_eye_tracking_violations)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.Category, e.DurationMinutes, e.Status, e.CollegeID, e.Branch,
		e.OwnerID, e.ScheduledStart, e.ScheduledEnd, e.MaxAttempts, e.ShuffleQuestions,
		e.ProctoringEnabled, e.MaxViolations, e.MaxEyeTrackingViolations,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update writes every mutable column of the exam.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE exams SET title = $1, description = $2, category = $3, duration_minutes = $4,
		        college_id = $5, branch = $6, scheduled_start = $7, scheduled_end = $8,
		        max_attempts = $9, shuffle_questions = $10, proctoring_enabled = $11,
		        max_violations = $12, max_eye_tracking_violations = $13, updated_at = NOW()
		 WHERE id = $14
		 RETURNING updated_at`,
		e.Title, e.Description, e.Category, e.DurationMinutes,
		e.CollegeID, e.Branch, e.ScheduledStart, e.ScheduledEnd,
		e.MaxAttempts, e.ShuffleQuestions, e.ProctoringEnabled,
		e.MaxViolations, e.MaxEyeTrackingViolations, e.ID,
	).Scan(&e.UpdatedAt)
	return mapError(err)
}

// UpdateStatus updates an exam's status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an exam and, by cascade, its questions.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
