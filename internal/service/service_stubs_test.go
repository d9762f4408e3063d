package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/internal/repository"
	"github.com/pedagolab/stepflow-api/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// memoryJobRepo is an in-memory EvaluationJobRepository with the same
// conditional-update semantics as the SQL implementation.
type memoryJobRepo struct {
	mu     sync.Mutex
	nextID uint
	jobs   map[uint]models.EvaluationJob
	// createErr fails Create for the keyed submission ids.
	createErr map[uint]error
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{jobs: map[uint]models.EvaluationJob{}}
}

func (m *memoryJobRepo) Create(_ context.Context, job *models.EvaluationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[job.SubmissionID]; err != nil {
		return err
	}
	m.nextID++
	job.ID = m.nextID
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryJobRepo) Update(_ context.Context, job *models.EvaluationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	job.UpdatedAt = time.Now()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryJobRepo) GetByID(_ context.Context, id uint) (models.EvaluationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.EvaluationJob{}, gorm.ErrRecordNotFound
	}
	return job, nil
}

func (m *memoryJobRepo) GetLatest(_ context.Context, activityID uint, step int, submissionID uint) (models.EvaluationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.EvaluationJob
	for id := range m.jobs {
		job := m.jobs[id]
		if job.ActivityID == activityID && job.Step == step && job.SubmissionID == submissionID {
			if found == nil || job.ID > found.ID {
				copied := job
				found = &copied
			}
		}
	}
	if found == nil {
		return models.EvaluationJob{}, gorm.ErrRecordNotFound
	}
	return *found, nil
}

func (m *memoryJobRepo) FindActive(ctx context.Context, activityID uint, step int, submissionID uint) (models.EvaluationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.EvaluationJob
	for id := range m.jobs {
		job := m.jobs[id]
		if job.ActivityID == activityID && job.Step == step && job.SubmissionID == submissionID &&
			(job.Status == models.EvaluationStatusPending || job.Status == models.EvaluationStatusProcessing) {
			if found == nil || job.ID > found.ID {
				copied := job
				found = &copied
			}
		}
	}
	if found == nil {
		return models.EvaluationJob{}, gorm.ErrRecordNotFound
	}
	return *found, nil
}

func (m *memoryJobRepo) ListPending(_ context.Context, limit int) ([]models.EvaluationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []models.EvaluationJob
	for id := uint(1); id <= m.nextID; id++ {
		if job, ok := m.jobs[id]; ok && job.Status == models.EvaluationStatusPending {
			pending = append(pending, job)
			if limit > 0 && len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (m *memoryJobRepo) ListEligible(_ context.Context, activityID uint, step int) ([]models.EvaluationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var eligible []models.EvaluationJob
	for id := uint(1); id <= m.nextID; id++ {
		job, ok := m.jobs[id]
		if !ok || job.ActivityID != activityID || job.Step != step {
			continue
		}
		if (job.Status == models.EvaluationStatusCompleted || job.Status == models.EvaluationStatusApplied) && job.Feedback != "" {
			eligible = append(eligible, job)
		}
	}
	return eligible, nil
}

func (m *memoryJobRepo) TransitionStatus(_ context.Context, id uint, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	job.UpdatedAt = time.Now()
	m.jobs[id] = job
	return true, nil
}

func (m *memoryJobRepo) MarkApplied(_ context.Context, id uint, appliedBy uint, appliedAt time.Time, flags repository.VisibilityUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != models.EvaluationStatusCompleted {
		return false, nil
	}
	job.Status = models.EvaluationStatusApplied
	job.AppliedBy = &appliedBy
	job.AppliedAt = &appliedAt
	job.ShowFeedback = flags.ShowFeedback
	job.ShowCriteria = flags.ShowCriteria
	job.ShowKeywordsFound = flags.ShowKeywordsFound
	job.ShowKeywordsMissing = flags.ShowKeywordsMissing
	job.ShowSuggestions = flags.ShowSuggestions
	m.jobs[id] = job
	return true, nil
}

func (m *memoryJobRepo) Delete(_ context.Context, id uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return false, nil
	}
	delete(m.jobs, id)
	return true, nil
}

func (m *memoryJobRepo) DeleteForSubmission(_ context.Context, activityID uint, step int, submissionID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, job := range m.jobs {
		if job.ActivityID == activityID && job.Step == step && job.SubmissionID == submissionID {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

type memorySubmissionRepo struct {
	mu          sync.Mutex
	nextID      uint
	submissions map[uint]models.StepSubmission
	gradeErr    error
}

func newMemorySubmissionRepo() *memorySubmissionRepo {
	return &memorySubmissionRepo{submissions: map[uint]models.StepSubmission{}}
}

func (m *memorySubmissionRepo) Create(_ context.Context, submission *models.StepSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	submission.ID = m.nextID
	m.submissions[submission.ID] = *submission
	return nil
}

func (m *memorySubmissionRepo) GetByID(_ context.Context, id uint) (models.StepSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	submission, ok := m.submissions[id]
	if !ok {
		return models.StepSubmission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (m *memorySubmissionRepo) ListSubmitted(_ context.Context, activityID uint, step int) ([]models.StepSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.StepSubmission
	for id := uint(1); id <= m.nextID; id++ {
		submission, ok := m.submissions[id]
		if ok && submission.ActivityID == activityID && submission.Step == step && submission.Status == models.StepSubmissionStatusSubmitted {
			result = append(result, submission)
		}
	}
	return result, nil
}

func (m *memorySubmissionRepo) ListOverdueDrafts(_ context.Context, now time.Time) ([]models.StepSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.StepSubmission
	for id := uint(1); id <= m.nextID; id++ {
		submission, ok := m.submissions[id]
		if ok && submission.Status == models.StepSubmissionStatusDraft && submission.DueDate != nil && submission.DueDate.Before(now) {
			result = append(result, submission)
		}
	}
	return result, nil
}

func (m *memorySubmissionRepo) MarkSubmitted(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	submission, ok := m.submissions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	submission.Status = models.StepSubmissionStatusSubmitted
	m.submissions[id] = submission
	return nil
}

func (m *memorySubmissionRepo) WriteGrade(_ context.Context, id uint, grade float64, feedback string, gradedBy uint, gradedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gradeErr != nil {
		return m.gradeErr
	}
	submission, ok := m.submissions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	submission.Grade = &grade
	submission.Feedback = feedback
	submission.GradedBy = &gradedBy
	submission.GradedAt = &gradedAt
	m.submissions[id] = submission
	return nil
}

type stubActivityRepo struct {
	activity models.Activity
	err      error
}

func (s *stubActivityRepo) GetByID(context.Context, uint) (models.Activity, error) {
	if s.err != nil {
		return models.Activity{}, s.err
	}
	return s.activity, nil
}

type stubCorrectionRepo struct {
	correction models.CorrectionModel
	err        error
}

func (s *stubCorrectionRepo) GetForStep(context.Context, uint, int) (models.CorrectionModel, error) {
	if s.err != nil {
		return models.CorrectionModel{}, s.err
	}
	return s.correction, nil
}

type memorySummaryRepo struct {
	mu      sync.Mutex
	rows    map[[2]uint]models.AggregateSummary
	upserts int
}

func newMemorySummaryRepo() *memorySummaryRepo {
	return &memorySummaryRepo{rows: map[[2]uint]models.AggregateSummary{}}
}

func (m *memorySummaryRepo) key(activityID uint, step int) [2]uint {
	return [2]uint{activityID, uint(step)}
}

func (m *memorySummaryRepo) Get(_ context.Context, activityID uint, step int) (models.AggregateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[m.key(activityID, step)]
	if !ok {
		return models.AggregateSummary{}, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (m *memorySummaryRepo) Upsert(_ context.Context, summary *models.AggregateSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if summary.ID == 0 {
		summary.ID = uint(len(m.rows) + 1)
	}
	m.rows[m.key(summary.ActivityID, summary.Step)] = *summary
	return nil
}

// stubProvider returns scripted responses and records every request.
type stubProvider struct {
	mu        sync.Mutex
	name      string
	responses []ai.ChatResponse
	errs      []error
	requests  []ai.ChatRequest
}

func (s *stubProvider) Name() string {
	if s.name == "" {
		return "openai"
	}
	return s.name
}

func (s *stubProvider) DefaultModel() string { return "stub-default" }
func (s *stubProvider) LightModel() string   { return "stub-light" }

func (s *stubProvider) Chat(_ context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.requests)
	s.requests = append(s.requests, req)
	if call < len(s.errs) && s.errs[call] != nil {
		return ai.ChatResponse{}, s.errs[call]
	}
	if call < len(s.responses) {
		return s.responses[call], nil
	}
	if len(s.responses) > 0 {
		return s.responses[len(s.responses)-1], nil
	}
	return ai.ChatResponse{}, nil
}

func (s *stubProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type stubResolver struct {
	provider *stubProvider
	model    string
	err      error
}

func (s *stubResolver) Resolve(models.Activity) (ai.Provider, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	model := s.model
	if model == "" {
		model = s.provider.DefaultModel()
	}
	return s.provider, model, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingPublisher) Publish(subject string, _ interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func (r *recordingPublisher) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.subjects...)
}
