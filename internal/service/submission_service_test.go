package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pedagolab/stepflow-api/internal/dto"
	"github.com/pedagolab/stepflow-api/internal/models"
)

// stubEvaluationService records queue requests and can be scripted to fail.
type stubEvaluationService struct {
	mu       sync.Mutex
	queued   []dto.QueueEvaluationRequest
	queueErr error
	nextID   uint
}

func (s *stubEvaluationService) Queue(_ context.Context, req dto.QueueEvaluationRequest) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueErr != nil {
		return 0, s.queueErr
	}
	s.nextID++
	s.queued = append(s.queued, req)
	return s.nextID, nil
}

func (s *stubEvaluationService) Process(context.Context, uint) error { return nil }

func (s *stubEvaluationService) Get(context.Context, uint, int, uint) (models.EvaluationJob, error) {
	return models.EvaluationJob{}, ErrJobNotFound
}

func (s *stubEvaluationService) GetByID(context.Context, uint) (models.EvaluationJob, error) {
	return models.EvaluationJob{}, ErrJobNotFound
}

func (s *stubEvaluationService) Delete(context.Context, uint) error { return nil }

func (s *stubEvaluationService) DeleteForSubmission(context.Context, uint, int, uint) (int64, error) {
	return 0, nil
}

func (s *stubEvaluationService) BulkReevaluate(context.Context, uint, int) (dto.BulkReevaluateResult, error) {
	return dto.BulkReevaluateResult{}, nil
}

func (s *stubEvaluationService) TestProvider(context.Context, string, string) error { return nil }

func addDraft(t *testing.T, repo *memorySubmissionRepo, step int, due time.Time) uint {
	t.Helper()
	submission := models.StepSubmission{
		ActivityID: 1,
		GroupID:    7,
		UserID:     3,
		Step:       step,
		Status:     models.StepSubmissionStatusDraft,
		DueDate:    &due,
	}
	require.NoError(t, repo.Create(context.Background(), &submission))
	return submission.ID
}

func TestSubmitExpiredDrafts(t *testing.T) {
	submissions := newMemorySubmissionRepo()
	evaluations := &stubEvaluationService{}
	service := NewSubmissionService(submissions, evaluations, testLogger())

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	overdueID := addDraft(t, submissions, 5, past)
	addDraft(t, submissions, 5, future)
	nonEvaluableID := addDraft(t, submissions, 2, past)

	submitted, err := service.SubmitExpiredDrafts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, submitted)

	// Both overdue drafts flipped to submitted.
	for _, id := range []uint{overdueID, nonEvaluableID} {
		row, err := submissions.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, models.StepSubmissionStatusSubmitted, row.Status)
	}

	// Only the evaluable step got an evaluation queued.
	require.Len(t, evaluations.queued, 1)
	require.Equal(t, overdueID, evaluations.queued[0].SubmissionID)
	require.Equal(t, 5, evaluations.queued[0].Step)
	require.Equal(t, uint(7), evaluations.queued[0].GroupID)
	require.Equal(t, uint(3), evaluations.queued[0].UserID)
}

func TestSubmitExpiredDraftsQueueFailureKeepsSubmission(t *testing.T) {
	submissions := newMemorySubmissionRepo()
	evaluations := &stubEvaluationService{queueErr: errors.New("provider down")}
	service := NewSubmissionService(submissions, evaluations, testLogger())

	id := addDraft(t, submissions, 6, time.Now().Add(-time.Minute))

	submitted, err := service.SubmitExpiredDrafts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, submitted)

	row, err := submissions.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.StepSubmissionStatusSubmitted, row.Status)
}

func TestSubmitExpiredDraftsListError(t *testing.T) {
	service := NewSubmissionService(failingSubmissionRepo{}, &stubEvaluationService{}, testLogger())

	_, err := service.SubmitExpiredDrafts(context.Background())
	require.Error(t, err)
}

type failingSubmissionRepo struct{}

func (failingSubmissionRepo) Create(context.Context, *models.StepSubmission) error {
	return errors.New("unavailable")
}

func (failingSubmissionRepo) GetByID(context.Context, uint) (models.StepSubmission, error) {
	return models.StepSubmission{}, errors.New("unavailable")
}

func (failingSubmissionRepo) ListSubmitted(context.Context, uint, int) ([]models.StepSubmission, error) {
	return nil, errors.New("unavailable")
}

func (failingSubmissionRepo) ListOverdueDrafts(context.Context, time.Time) ([]models.StepSubmission, error) {
	return nil, errors.New("unavailable")
}

func (failingSubmissionRepo) MarkSubmitted(context.Context, uint) error {
	return errors.New("unavailable")
}

func (failingSubmissionRepo) WriteGrade(context.Context, uint, float64, string, uint, time.Time) error {
	return errors.New("unavailable")
}
