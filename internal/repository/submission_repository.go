package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-portal/internal/model"
)

const submissionScalarColumns = `id, exam_id, student_id, external_student_label,
	objective_score, total_objective_questions, objective_percentage,
	descriptive_score, max_descriptive_score, final_score, final_percentage,
	time_taken_seconds, submitted_at, status, answered_count,
	is_auto_submit, auto_submit_reason, proctoring, artifact_status, artifact_path`

// submissionColumns loads every column including image payloads.
const submissionColumns = submissionScalarColumns + `, answers, canvas_answers`

// submissionListColumns strips image payloads, which list views never need.
const submissionListColumns = submissionScalarColumns + `,
	(SELECT COALESCE(jsonb_agg(a - 'canvas_payload'), '[]'::jsonb) FROM jsonb_array_elements(answers) a),
	(SELECT COALESCE(jsonb_agg(ca - 'image_payload'), '[]'::jsonb) FROM jsonb_array_elements(canvas_answers) ca)`

// SubmissionRepository handles submission data access. Answers and canvas
// answers are JSONB columns of the submission row, so a submission is
// written in a single statement.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func scanSubmission(row pgx.Row, s *model.Submission) error {
	return row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.ExternalStudentLabel,
		&s.ObjectiveScore, &s.TotalObjectiveQuestions, &s.ObjectivePercentage,
		&s.DescriptiveScore, &s.MaxDescriptiveScore, &s.FinalScore, &s.FinalPercentage,
		&s.TimeTakenSeconds, &s.SubmittedAt, &s.Status, &s.AnsweredCount,
		&s.IsAutoSubmit, &s.AutoSubmitReason, &s.Proctoring, &s.ArtifactStatus, &s.ArtifactPath,
		&s.Answers, &s.CanvasAnswers)
}

func collectSubmissions(rows pgx.Rows) ([]model.Submission, error) {
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		var s model.Submission
		if err := scanSubmission(rows, &s); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Create inserts a submission. A second submission for the same
// (exam_id, student_id) fails with ErrDuplicate.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions (exam_id, student_id, external_student_label, answers, canvas_answers,
		                          objective_score, total_objective_questions, objective_percentage,
		                          descriptive_score, max_descriptive_score, final_score, final_percentage,
		                          time_taken_seconds, submitted_at, status, answered_count,
		                          is_auto_submit, auto_submit_reason, proctoring, artifact_status, artifact_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		 RETURNING id`,
		s.ExamID, s.StudentID, s.ExternalStudentLabel, s.Answers, s.CanvasAnswers,
		s.ObjectiveScore, s.TotalObjectiveQuestions, s.ObjectivePercentage,
		s.DescriptiveScore, s.MaxDescriptiveScore, s.FinalScore, s.FinalPercentage,
		s.TimeTakenSeconds, s.SubmittedAt, s.Status, s.AnsweredCount,
		s.IsAutoSubmit, s.AutoSubmitReason, s.Proctoring, s.ArtifactStatus, s.ArtifactPath,
	).Scan(&s.ID)
	return mapError(err)
}

// GetByID retrieves a full submission.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	s := &model.Submission{}
	row := r.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	if err := scanSubmission(row, s); err != nil {
		return nil, mapError(err)
	}
	return s, nil
}

// Exists reports whether the student already submitted the exam.
func (r *SubmissionRepository) Exists(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM submissions WHERE exam_id = $1 AND student_id = $2)`,
		examID, studentID,
	).Scan(&exists)
	return exists, err
}

// ListByExam returns a page of an exam's submissions without image payloads,
// best final percentage first.
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Submission, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionListColumns+`
		 FROM submissions WHERE exam_id = $1
		 ORDER BY final_percentage DESC, submitted_at
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	subs, err := collectSubmissions(rows)
	return subs, total, err
}

// ListAllByExam returns every submission of an exam without image payloads.
func (r *SubmissionRepository) ListAllByExam(ctx context.Context, examID uuid.UUID) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionListColumns+`
		 FROM submissions WHERE exam_id = $1
		 ORDER BY external_student_label, student_id`, examID)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

// ListByStudent returns a student's submissions, oldest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionListColumns+`
		 FROM submissions WHERE student_id = $1
		 ORDER BY submitted_at`, studentID)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

// Stats aggregates final percentages for an exam.
func (r *SubmissionRepository) Stats(ctx context.Context, examID uuid.UUID, passThreshold float64) (model.ExamStats, error) {
	var st model.ExamStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE final_percentage >= $2),
		        COALESCE(AVG(final_percentage), 0)::float8,
		        COALESCE(MIN(final_percentage), 0)::float8,
		        COALESCE(MAX(final_percentage), 0)::float8,
		        COALESCE(SUM((SELECT COUNT(*) FROM jsonb_array_elements(canvas_answers) ca
		                      WHERE NOT COALESCE((ca->>'is_graded')::boolean, false))), 0)::int
		 FROM submissions WHERE exam_id = $1`,
		examID, passThreshold,
	).Scan(&st.Count, &st.PassCount, &st.Average, &st.Min, &st.Max, &st.PendingGrading)
	return st, err
}

// UpdateLocked loads a submission under a row lock, applies fn and writes the
// answers and every derived field back in the same transaction. If fn
// returns an error nothing is written.
func (r *SubmissionRepository) UpdateLocked(ctx context.Context, id uuid.UUID, fn func(*model.Submission) error) (*model.Submission, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s := &model.Submission{}
	row := tx.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id)
	if err := scanSubmission(row, s); err != nil {
		return nil, mapError(err)
	}

	if err := fn(s); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE submissions
		 SET answers = $1, canvas_answers = $2, objective_score = $3, objective_percentage = $4,
		     descriptive_score = $5, max_descriptive_score = $6, final_score = $7, final_percentage = $8,
		     answered_count = $9, updated_at = NOW()
		 WHERE id = $10`,
		s.Answers, s.CanvasAnswers, s.ObjectiveScore, s.ObjectivePercentage,
		s.DescriptiveScore, s.MaxDescriptiveScore, s.FinalScore, s.FinalPercentage,
		s.AnsweredCount, s.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

// UpdateArtifact records the outcome of answer-sheet generation.
func (r *SubmissionRepository) UpdateArtifact(ctx context.Context, id uuid.UUID, status model.ArtifactStatus, path string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions SET artifact_status = $1, artifact_path = $2, updated_at = NOW() WHERE id = $3`,
		status, path, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
