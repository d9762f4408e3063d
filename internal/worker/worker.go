package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pedagolab/stepflow-api/internal/observability"
	"github.com/pedagolab/stepflow-api/internal/repository"
	"github.com/pedagolab/stepflow-api/internal/service"
)

const pollBatchSize = 10

// Config tunes the polling worker.
type Config struct {
	PollInterval  time.Duration
	SweepInterval time.Duration
	Concurrency   int
}

// Worker drains pending evaluation jobs and runs the deadline sweep. Jobs are
// claimed inside the evaluation service with a conditional status update, so
// running several workers against the same database is safe.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	Enqueue(jobID uint)
}

type worker struct {
	jobs        repository.EvaluationJobRepository
	evaluations service.EvaluationService
	submissions service.SubmissionService
	cfg         Config
	logger      zerolog.Logger

	queue    chan uint
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs the worker. submissions may be nil when the deadline sweep
// is not wanted.
func New(
	jobs repository.EvaluationJobRepository,
	evaluations service.EvaluationService,
	submissions service.SubmissionService,
	cfg Config,
	logger zerolog.Logger,
) Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}

	return &worker{
		jobs:        jobs,
		evaluations: evaluations,
		submissions: submissions,
		cfg:         cfg,
		logger:      logger.With().Str("component", "evaluation_worker").Logger(),
		queue:       make(chan uint, 100),
		stopChan:    make(chan struct{}),
	}
}

func (w *worker) Start(ctx context.Context) {
	w.logger.Info().
		Int("concurrency", w.cfg.Concurrency).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("starting evaluation worker")

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollPending(ctx)

	if w.submissions != nil {
		w.wg.Add(1)
		go w.sweepDeadlines(ctx)
	}
}

func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info().Msg("evaluation worker stopped")
}

// Enqueue hands a job straight to the processing pool without waiting for the
// next poll tick.
func (w *worker) Enqueue(jobID uint) {
	select {
	case w.queue <- jobID:
	case <-w.stopChan:
		w.logger.Warn().Uint("job_id", jobID).Msg("worker stopped, job left for next poll")
	}
}

func (w *worker) processJobs(ctx context.Context, id int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case jobID := <-w.queue:
			logger := w.logger.With().Int("worker", id).Uint("job_id", jobID).Logger()
			if err := w.evaluations.Process(ctx, jobID); err != nil {
				observability.EvaluationJobs().WithLabelValues("failed").Inc()
				logger.Warn().Err(err).Msg("evaluation job failed")
				continue
			}
			observability.EvaluationJobs().WithLabelValues("completed").Inc()
			logger.Info().Msg("evaluation job processed")
		}
	}
}

func (w *worker) pollPending(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := w.jobs.ListPending(ctx, pollBatchSize)
			if err != nil {
				w.logger.Warn().Err(err).Msg("failed to fetch pending jobs")
				continue
			}
			observability.EvaluationQueueDepth().Set(float64(len(pending)))
			for _, job := range pending {
				w.Enqueue(job.ID)
			}
		}
	}
}

func (w *worker) sweepDeadlines(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			submitted, err := w.submissions.SubmitExpiredDrafts(ctx)
			if err != nil {
				w.logger.Warn().Err(err).Msg("deadline sweep failed")
				continue
			}
			if submitted > 0 {
				w.logger.Info().Int("submitted", submitted).Msg("overdue drafts auto-submitted")
			}
		}
	}
}
