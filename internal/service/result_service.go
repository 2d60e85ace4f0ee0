package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/scoring"
)

// UncategorizedLabel groups exams without a category (or already deleted).
const UncategorizedLabel = "Tanpa Kategori"

// ResultService assembles read views over stored submissions.
type ResultService struct {
	submissions SubmissionStore
	exams       ExamReader
	questions   QuestionReader
	users       UserReader
	cfg         config.ScoringConfig
	log         zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(
	submissions SubmissionStore,
	exams ExamReader,
	questions QuestionReader,
	users UserReader,
	cfg config.ScoringConfig,
	log zerolog.Logger,
) *ResultService {
	return &ResultService{
		submissions: submissions,
		exams:       exams,
		questions:   questions,
		users:       users,
		cfg:         cfg,
		log:         log.With().Str("component", "result_service").Logger(),
	}
}

// ─── Single submission ────────────────────────────────────────────────

// GetSubmissionResult returns the detailed result of one submission. Only
// the student who owns it, that student's parent, or an admin may read it.
func (s *ResultService) GetSubmissionResult(ctx context.Context, viewer Viewer, submissionID uuid.UUID) (*model.SubmissionResult, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}

	if err := s.authorize(ctx, viewer, sub.StudentID); err != nil {
		return nil, err
	}

	var (
		exam      *model.Exam
		questions []model.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := s.exams.GetByID(gctx, sub.ExamID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("get exam: %w", err)
		}
		exam = e
		return nil
	})
	g.Go(func() error {
		qs, err := s.questions.ListByExam(gctx, sub.ExamID)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		questions = qs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.assemble(sub, exam, questions), nil
}

func (s *ResultService) assemble(sub *model.Submission, exam *model.Exam, questions []model.Question) *model.SubmissionResult {
	triggered := sub.AutoSubmitReason == model.AutoSubmitReasonViolationLimit ||
		sub.AutoSubmitReason == model.AutoSubmitReasonEyeTrackingLimit

	res := &model.SubmissionResult{
		SubmissionID:         sub.ID,
		ExamID:               sub.ExamID,
		ExamTitle:            model.DeletedExamTitle,
		StudentID:            sub.StudentID,
		ExternalStudentLabel: sub.ExternalStudentLabel,
		SubmittedAt:          sub.SubmittedAt,
		TimeTakenSeconds:     sub.TimeTakenSeconds,
		Status:               sub.Status,
		ObjectiveScore:       sub.ObjectiveScore,
		TotalQuestions:       sub.TotalObjectiveQuestions,
		ObjectivePercentage:  sub.ObjectivePercentage,
		DescriptiveScore:     sub.DescriptiveScore,
		MaxDescriptiveScore:  sub.MaxDescriptiveScore,
		FinalScore:           sub.FinalScore,
		FinalPercentage:      sub.FinalPercentage,
		AnsweredCount:        sub.AnsweredCount,
		PendingGradingCount:  sub.PendingGradingCount(),
		PassThreshold:        s.cfg.PassThreshold,
		Passed:               scoring.Passed(sub.FinalPercentage, s.cfg.PassThreshold),
		IsAutoSubmit:         sub.IsAutoSubmit,
		AutoSubmitReason:     sub.AutoSubmitReason,
		ViolationTriggered:   triggered,
		Proctoring:           sub.Proctoring,
		ArtifactStatus:       sub.ArtifactStatus,
		Questions:            make([]model.QuestionResult, 0, len(sub.Answers)),
	}
	if exam != nil {
		res.ExamTitle = exam.Title
		res.ExamCategory = exam.Category
	}

	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	for _, a := range sub.Answers {
		qr := model.QuestionResult{
			QuestionID:     a.QuestionID,
			Kind:           a.Kind,
			SelectedOption: a.SelectedOption,
			IsCorrect:      a.IsCorrect,
			Options:        []string{},
		}
		if q, ok := byID[a.QuestionID]; ok {
			qr.QuestionText = q.QuestionText
			qr.ImageURL = q.ImageURL
			qr.Options = q.Options
			qr.CorrectOptionIndex = q.CorrectOptionIndex
		} else {
			qr.QuestionText = model.DeletedQuestionText
			qr.QuestionDeleted = true
		}
		if a.Kind == model.AnswerKindCanvas {
			if ca := sub.FindCanvasAnswer(a.QuestionID); ca != nil {
				c := *ca
				qr.CanvasAnswer = &c
			}
		}
		res.Questions = append(res.Questions, qr)
	}
	return res
}

// ─── Exam aggregate ───────────────────────────────────────────────────

// GetExamResults returns the aggregate statistics and one page of rows.
func (s *ResultService) GetExamResults(ctx context.Context, examID uuid.UUID, q model.PageQuery) (*model.ExamResults, *response.Pagination, error) {
	q.Normalize()

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrExamNotFound
		}
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}

	var (
		stats model.ExamStats
		page  []model.Submission
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := s.submissions.Stats(gctx, examID, s.cfg.PassThreshold)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		stats = st
		return nil
	})
	g.Go(func() error {
		subs, n, err := s.submissions.ListByExam(gctx, examID, q.PerPage, q.Offset())
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		page, total = subs, n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	rows, err := s.rows(ctx, page)
	if err != nil {
		return nil, nil, err
	}

	return &model.ExamResults{
		ExamID:        exam.ID,
		ExamTitle:     exam.Title,
		PassThreshold: s.cfg.PassThreshold,
		Stats:         stats,
		Submissions:   rows,
	}, paginate(q, total), nil
}

// ExportExamResults loads every submission of an exam for the spreadsheet export.
func (s *ResultService) ExportExamResults(ctx context.Context, examID uuid.UUID) (*model.ExamResults, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	var (
		stats model.ExamStats
		all   []model.Submission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = s.submissions.Stats(gctx, examID, s.cfg.PassThreshold)
		return err
	})
	g.Go(func() (err error) {
		all, err = s.submissions.ListAllByExam(gctx, examID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows, err := s.rows(ctx, all)
	if err != nil {
		return nil, err
	}
	return &model.ExamResults{
		ExamID:        exam.ID,
		ExamTitle:     exam.Title,
		PassThreshold: s.cfg.PassThreshold,
		Stats:         stats,
		Submissions:   rows,
	}, nil
}

func (s *ResultService) rows(ctx context.Context, subs []model.Submission) ([]model.SubmissionRow, error) {
	ids := make([]int, 0, len(subs))
	for i := range subs {
		ids = append(ids, subs[i].StudentID)
	}
	names, err := s.users.GetNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("student names: %w", err)
	}

	rows := make([]model.SubmissionRow, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		rows = append(rows, model.SubmissionRow{
			SubmissionID:         sub.ID,
			StudentID:            sub.StudentID,
			StudentName:          names[sub.StudentID],
			ExternalStudentLabel: sub.ExternalStudentLabel,
			ObjectiveScore:       sub.ObjectiveScore,
			ObjectivePercentage:  sub.ObjectivePercentage,
			FinalScore:           sub.FinalScore,
			FinalPercentage:      sub.FinalPercentage,
			PendingGradingCount:  sub.PendingGradingCount(),
			Passed:               scoring.Passed(sub.FinalPercentage, s.cfg.PassThreshold),
			ViolationCount:       sub.Proctoring.ViolationCount + sub.Proctoring.EyeTrackingViolationCount,
			IsAutoSubmit:         sub.IsAutoSubmit,
			AutoSubmitReason:     sub.AutoSubmitReason,
			TimeTakenSeconds:     sub.TimeTakenSeconds,
			SubmittedAt:          sub.SubmittedAt,
		})
	}
	return rows, nil
}

// ─── Student performance ──────────────────────────────────────────────

// GetStudentPerformance buckets a student's submissions by exam category.
func (s *ResultService) GetStudentPerformance(ctx context.Context, viewer Viewer, studentID int) (*model.StudentPerformance, error) {
	if studentID <= 0 {
		return nil, fmt.Errorf("%w: student id must be positive", ErrInvalidArgument)
	}
	if err := s.authorize(ctx, viewer, studentID); err != nil {
		return nil, err
	}

	var (
		student *model.User
		subs    []model.Submission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.users.GetByID(gctx, studentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("get student: %w", err)
		}
		student = u
		return nil
	})
	g.Go(func() error {
		ss, err := s.submissions.ListByStudent(gctx, studentID)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		subs = ss
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	examIDs := make([]uuid.UUID, 0, len(subs))
	seen := make(map[uuid.UUID]bool, len(subs))
	for i := range subs {
		if !seen[subs[i].ExamID] {
			seen[subs[i].ExamID] = true
			examIDs = append(examIDs, subs[i].ExamID)
		}
	}
	exams, err := s.exams.GetByIDs(ctx, examIDs)
	if err != nil {
		return nil, fmt.Errorf("get exams: %w", err)
	}
	category := make(map[uuid.UUID]string, len(exams))
	for _, e := range exams {
		category[e.ID] = e.Category
	}

	return s.performance(student, subs, category), nil
}

// performance expects subs ordered oldest first.
func (s *ResultService) performance(student *model.User, subs []model.Submission, category map[uuid.UUID]string) *model.StudentPerformance {
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })

	type bucket struct {
		percentages []float64
		passed      int
		last        time.Time
	}
	buckets := make(map[string]*bucket)
	var all []float64
	passedAll := 0

	for i := range subs {
		sub := &subs[i]
		name := category[sub.ExamID]
		if name == "" {
			name = UncategorizedLabel
		}
		b, ok := buckets[name]
		if !ok {
			b = &bucket{}
			buckets[name] = b
		}
		b.percentages = append(b.percentages, sub.FinalPercentage)
		b.last = sub.SubmittedAt
		all = append(all, sub.FinalPercentage)
		if scoring.Passed(sub.FinalPercentage, s.cfg.PassThreshold) {
			b.passed++
			passedAll++
		}
	}

	perf := &model.StudentPerformance{
		StudentID:     student.ID,
		StudentName:   student.Name,
		PassThreshold: s.cfg.PassThreshold,
		Attempts:      len(all),
		PassRate:      scoring.Percentage(float64(passedAll), float64(len(all))),
		Average:       scoring.Round2(scoring.Mean(all)),
		Trend:         string(scoring.ClassifyTrend(all, s.cfg.TrendTolerance)),
		Categories:    make([]model.CategoryPerformance, 0, len(buckets)),
	}

	for name, b := range buckets {
		lo, hi := b.percentages[0], b.percentages[0]
		for _, p := range b.percentages {
			lo = min(lo, p)
			hi = max(hi, p)
		}
		perf.Categories = append(perf.Categories, model.CategoryPerformance{
			Category:   name,
			Attempts:   len(b.percentages),
			Passed:     b.passed,
			PassRate:   scoring.Percentage(float64(b.passed), float64(len(b.percentages))),
			Average:    scoring.Round2(scoring.Mean(b.percentages)),
			Min:        lo,
			Max:        hi,
			Trend:      string(scoring.ClassifyTrend(b.percentages, s.cfg.TrendTolerance)),
			LastExamAt: b.last.UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(perf.Categories, func(i, j int) bool { return perf.Categories[i].Category < perf.Categories[j].Category })
	return perf
}

// authorize allows admins, the student themself and the student's parent.
func (s *ResultService) authorize(ctx context.Context, viewer Viewer, studentID int) error {
	switch viewer.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleStudent:
		if viewer.UserID == studentID {
			return nil
		}
		return ErrForbidden
	case model.RoleParent:
		student, err := s.users.GetByID(ctx, studentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrForbidden
			}
			return fmt.Errorf("get student: %w", err)
		}
		if student.ParentID != nil && *student.ParentID == viewer.UserID {
			return nil
		}
		return ErrForbidden
	default:
		return ErrForbidden
	}
}
