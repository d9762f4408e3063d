package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pedagolab/stepflow-api/internal/dto"
	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/internal/repository"
)

type recordingEvaluations struct {
	mu        sync.Mutex
	processed []uint
	err       error
}

func (r *recordingEvaluations) Process(_ context.Context, jobID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.processed = append(r.processed, jobID)
	return nil
}

func (r *recordingEvaluations) processedIDs() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.processed...)
}

func (r *recordingEvaluations) Queue(context.Context, dto.QueueEvaluationRequest) (uint, error) {
	return 0, nil
}

func (r *recordingEvaluations) Get(context.Context, uint, int, uint) (models.EvaluationJob, error) {
	return models.EvaluationJob{}, errors.New("not implemented")
}

func (r *recordingEvaluations) GetByID(context.Context, uint) (models.EvaluationJob, error) {
	return models.EvaluationJob{}, errors.New("not implemented")
}

func (r *recordingEvaluations) Delete(context.Context, uint) error { return nil }

func (r *recordingEvaluations) DeleteForSubmission(context.Context, uint, int, uint) (int64, error) {
	return 0, nil
}

func (r *recordingEvaluations) BulkReevaluate(context.Context, uint, int) (dto.BulkReevaluateResult, error) {
	return dto.BulkReevaluateResult{}, nil
}

func (r *recordingEvaluations) TestProvider(context.Context, string, string) error { return nil }

type stubJobLister struct {
	mu      sync.Mutex
	pending []models.EvaluationJob
}

func (s *stubJobLister) ListPending(context.Context, int) ([]models.EvaluationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	return pending, nil
}

func (s *stubJobLister) Create(context.Context, *models.EvaluationJob) error { return nil }
func (s *stubJobLister) Update(context.Context, *models.EvaluationJob) error { return nil }

func (s *stubJobLister) GetByID(context.Context, uint) (models.EvaluationJob, error) {
	return models.EvaluationJob{}, errors.New("not implemented")
}

func (s *stubJobLister) GetLatest(context.Context, uint, int, uint) (models.EvaluationJob, error) {
	return models.EvaluationJob{}, errors.New("not implemented")
}

func (s *stubJobLister) FindActive(context.Context, uint, int, uint) (models.EvaluationJob, error) {
	return models.EvaluationJob{}, errors.New("not implemented")
}

func (s *stubJobLister) ListEligible(context.Context, uint, int) ([]models.EvaluationJob, error) {
	return nil, nil
}

func (s *stubJobLister) TransitionStatus(context.Context, uint, string, string) (bool, error) {
	return false, nil
}

func (s *stubJobLister) MarkApplied(context.Context, uint, uint, time.Time, repository.VisibilityUpdate) (bool, error) {
	return false, nil
}

func (s *stubJobLister) Delete(context.Context, uint) (bool, error) { return false, nil }

func (s *stubJobLister) DeleteForSubmission(context.Context, uint, int, uint) (int64, error) {
	return 0, nil
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSweeper) SubmitExpiredDrafts(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0, nil
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestWorkerProcessesEnqueuedJobs(t *testing.T) {
	evaluations := &recordingEvaluations{}
	w := New(&stubJobLister{}, evaluations, nil, Config{PollInterval: time.Hour, SweepInterval: time.Hour}, zerolog.Nop())

	w.Start(context.Background())
	w.Enqueue(7)
	w.Enqueue(8)

	require.Eventually(t, func() bool {
		return len(evaluations.processedIDs()) == 2
	}, time.Second, 5*time.Millisecond)

	w.Stop()
	require.ElementsMatch(t, []uint{7, 8}, evaluations.processedIDs())
}

func TestWorkerPollsPendingJobs(t *testing.T) {
	evaluations := &recordingEvaluations{}
	jobs := &stubJobLister{pending: []models.EvaluationJob{{ID: 11}, {ID: 12}}}
	w := New(jobs, evaluations, nil, Config{PollInterval: 10 * time.Millisecond, SweepInterval: time.Hour}, zerolog.Nop())

	w.Start(context.Background())
	defer w.Stop()

	require.Eventually(t, func() bool {
		return len(evaluations.processedIDs()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerRunsDeadlineSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	w := New(&stubJobLister{}, &recordingEvaluations{}, sweeper, Config{PollInterval: time.Hour, SweepInterval: 10 * time.Millisecond}, zerolog.Nop())

	w.Start(context.Background())
	defer w.Stop()

	require.Eventually(t, func() bool {
		return sweeper.count() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	w := New(&stubJobLister{}, &recordingEvaluations{}, nil, Config{PollInterval: time.Hour, SweepInterval: time.Hour}, zerolog.Nop())
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}
