package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/scoring"
)

// ─── In-memory collaborators ──────────────────────────────────────────

type fakeSubmissions struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*model.Submission
	createErr error
	// existsLies makes Exists report false so the unique-key path is exercised.
	existsLies bool
	artifacts  map[uuid.UUID]model.ArtifactStatus
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{
		byID:      map[uuid.UUID]*model.Submission{},
		artifacts: map[uuid.UUID]model.ArtifactStatus{},
	}
}

func clone(s *model.Submission) *model.Submission {
	c := *s
	c.Answers = append([]model.AnswerRecord(nil), s.Answers...)
	c.CanvasAnswers = append([]model.CanvasAnswer(nil), s.CanvasAnswers...)
	return &c
}

func (f *fakeSubmissions) Create(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.byID {
		if existing.ExamID == s.ExamID && existing.StudentID == s.StudentID {
			return repository.ErrDuplicate
		}
	}
	s.ID = uuid.New()
	f.byID[s.ID] = clone(s)
	return nil
}

func (f *fakeSubmissions) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s), nil
}

func (f *fakeSubmissions) Exists(_ context.Context, examID uuid.UUID, studentID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsLies {
		return false, nil
	}
	for _, s := range f.byID {
		if s.ExamID == examID && s.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSubmissions) filter(keep func(*model.Submission) bool) []model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Submission
	for _, s := range f.byID {
		if keep(s) {
			out = append(out, *clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (f *fakeSubmissions) ListByExam(_ context.Context, examID uuid.UUID, limit, offset int) ([]model.Submission, int, error) {
	all := f.filter(func(s *model.Submission) bool { return s.ExamID == examID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (f *fakeSubmissions) ListAllByExam(_ context.Context, examID uuid.UUID) ([]model.Submission, error) {
	return f.filter(func(s *model.Submission) bool { return s.ExamID == examID }), nil
}

func (f *fakeSubmissions) ListByStudent(_ context.Context, studentID int) ([]model.Submission, error) {
	return f.filter(func(s *model.Submission) bool { return s.StudentID == studentID }), nil
}

func (f *fakeSubmissions) Stats(_ context.Context, examID uuid.UUID, passThreshold float64) (model.ExamStats, error) {
	var st model.ExamStats
	all := f.filter(func(s *model.Submission) bool { return s.ExamID == examID })
	var sum float64
	for i, s := range all {
		st.Count++
		sum += s.FinalPercentage
		if i == 0 || s.FinalPercentage < st.Min {
			st.Min = s.FinalPercentage
		}
		if s.FinalPercentage > st.Max {
			st.Max = s.FinalPercentage
		}
		if scoring.Passed(s.FinalPercentage, passThreshold) {
			st.PassCount++
		}
		st.PendingGrading += s.PendingGradingCount()
	}
	if st.Count > 0 {
		st.Average = scoring.Round2(sum / float64(st.Count))
		st.PassRate = scoring.Percentage(float64(st.PassCount), float64(st.Count))
	}
	return st, nil
}

func (f *fakeSubmissions) UpdateLocked(_ context.Context, id uuid.UUID, fn func(*model.Submission) error) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	work := clone(s)
	if err := fn(work); err != nil {
		return nil, err
	}
	f.byID[id] = clone(work)
	return work, nil
}

func (f *fakeSubmissions) UpdateArtifact(_ context.Context, id uuid.UUID, status model.ArtifactStatus, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.ArtifactStatus = status
	s.ArtifactPath = path
	f.artifacts[id] = status
	return nil
}

type fakeExams struct {
	byID map[uuid.UUID]*model.Exam
}

func (f *fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (f *fakeExams) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.Exam, error) {
	var out []model.Exam
	for _, id := range ids {
		if e, ok := f.byID[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeQuestions struct {
	byExam map[uuid.UUID][]model.Question
}

func (f *fakeQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return append([]model.Question(nil), f.byExam[examID]...), nil
}

type fakeUsers struct {
	byID map[int]*model.User
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetNames(_ context.Context, ids []int) (map[int]string, error) {
	out := map[int]string{}
	for _, id := range ids {
		if u, ok := f.byID[id]; ok {
			out[id] = u.Name
		}
	}
	return out, nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	err       error
	scheduled []uuid.UUID
}

func (f *fakeScheduler) ScheduleArtifact(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, id)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.MonitorEvent
}

func (f *fakePublisher) Publish(_ context.Context, e model.MonitorEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

type fakeSink struct {
	err    error
	events []model.ViolationEvent
}

func (f *fakeSink) EnqueueViolation(_ context.Context, e model.ViolationEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

var errBoom = errors.New("boom")

// ─── Fixtures ─────────────────────────────────────────────────────────

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func mcQuestion(examID uuid.UUID, order, correct int) model.Question {
	return model.Question{
		ID:                 uuid.New(),
		ExamID:             examID,
		QuestionText:       "pilihan ganda",
		Kind:               model.QuestionKindMultipleChoice,
		Options:            []string{"a", "b", "c", "d"},
		CorrectOptionIndex: intp(correct),
		OrderNum:           order,
	}
}

func descQuestion(examID uuid.UUID, order int) model.Question {
	return model.Question{
		ID:           uuid.New(),
		ExamID:       examID,
		QuestionText: "uraian",
		Kind:         model.QuestionKindDescriptive,
		OrderNum:     order,
	}
}

type fixture struct {
	subs      *fakeSubmissions
	exams     *fakeExams
	questions *fakeQuestions
	users     *fakeUsers
	sched     *fakeScheduler
	pub       *fakePublisher
	exam      *model.Exam
}

func newFixture(qs func(examID uuid.UUID) []model.Question) *fixture {
	exam := &model.Exam{ID: uuid.New(), Title: "Matematika", Category: "math", Status: model.ExamStatusActive, DurationMinutes: 60}
	f := &fixture{
		subs:      newFakeSubmissions(),
		exams:     &fakeExams{byID: map[uuid.UUID]*model.Exam{exam.ID: exam}},
		questions: &fakeQuestions{byExam: map[uuid.UUID][]model.Question{}},
		users: &fakeUsers{byID: map[int]*model.User{
			7:  {ID: 7, Name: "Ani", Role: model.RoleStudent, ParentID: intp(50)},
			8:  {ID: 8, Name: "Budi", Role: model.RoleStudent},
			50: {ID: 50, Name: "Ibu Ani", Role: model.RoleParent},
			99: {ID: 99, Name: "Admin", Role: model.RoleAdmin},
		}},
		sched: &fakeScheduler{},
		pub:   &fakePublisher{},
		exam:  exam,
	}
	if qs != nil {
		f.questions.byExam[exam.ID] = qs(exam.ID)
	}
	return f
}
