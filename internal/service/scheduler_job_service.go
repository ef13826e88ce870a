package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
	"github.com/noah-isme/mesa-scheduler/pkg/jobs"
)

type groupingRunner interface {
	RunGrouping(ctx context.Context, req dto.RunGroupingRequest) (*dto.GroupingReport, error)
}

type batchAssignRunner interface {
	RunBatchAssign(ctx context.Context, req dto.BatchAssignRequest) (*dto.BatchAssignReport, error)
}

type reoptimizeRunner interface {
	RunReoptimize(ctx context.Context, req dto.ReoptimizeRequest) (*dto.ReoptimizeReport, error)
}

// SchedulerJobConfig governs the asynchronous run queue.
type SchedulerJobConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	ResultTTL  time.Duration
}

// SchedulerJobService runs scheduler operations in the background. Each job is still
// one transaction; only lock timeouts are retried.
type SchedulerJobService struct {
	grouping   groupingRunner
	batch      batchAssignRunner
	reoptimize reoptimizeRunner
	queue      *jobs.Queue
	store      *jobStore
	maxRetries int
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSchedulerJobService wires the queue and its runners.
func NewSchedulerJobService(grouping groupingRunner, batch batchAssignRunner, reoptimize reoptimizeRunner, validate *validator.Validate, logger *zap.Logger, cfg SchedulerJobConfig) *SchedulerJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	svc := &SchedulerJobService{
		grouping:   grouping,
		batch:      batch,
		reoptimize: reoptimize,
		store:      newJobStore(cfg.ResultTTL),
		maxRetries: cfg.MaxRetries,
		validator:  validate,
		logger:     logger,
	}
	svc.queue = jobs.NewQueue("scheduler", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the workers.
func (s *SchedulerJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the workers to exit.
func (s *SchedulerJobService) Stop() {
	s.queue.Stop()
}

// Submit validates and enqueues a run.
func (s *SchedulerJobService) Submit(ctx context.Context, req dto.SchedulerJobRequest) (*dto.SchedulerJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scheduler job payload")
	}
	var payload interface{}
	switch req.Kind {
	case dto.JobKindGrouping:
		grouping := dto.RunGroupingRequest{}
		if req.Grouping != nil {
			grouping = *req.Grouping
		}
		payload = grouping
	case dto.JobKindBatchAssign:
		if req.BatchAssign == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "batchAssign payload is required")
		}
		payload = *req.BatchAssign
	case dto.JobKindReoptimize:
		reoptimize := dto.ReoptimizeRequest{}
		if req.Reoptimize != nil {
			reoptimize = *req.Reoptimize
		}
		payload = reoptimize
	}

	job := dto.SchedulerJob{
		ID:         uuid.NewString(),
		Kind:       req.Kind,
		Status:     dto.JobStatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	s.store.Save(job)
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: job.Kind, Payload: payload, Enqueued: job.EnqueuedAt}); err != nil {
		s.store.Delete(job.ID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue scheduler job")
	}
	s.logger.Info("scheduler job queued", zap.String("job_id", job.ID), zap.String("kind", job.Kind))
	return &job, nil
}

// Get returns the state of a job.
func (s *SchedulerJobService) Get(_ context.Context, id string) (*dto.SchedulerJob, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "scheduler job not found")
	}
	return &job, nil
}

func (s *SchedulerJobService) handle(ctx context.Context, job jobs.Job) error {
	s.store.Update(job.ID, func(state *dto.SchedulerJob) {
		state.Status = dto.JobStatusRunning
	})

	result, err := s.execute(ctx, job)
	if err != nil {
		retryable := appErrors.Is(err, appErrors.ErrConsistency) && job.Attempt < s.maxRetries
		if retryable {
			s.store.Update(job.ID, func(state *dto.SchedulerJob) {
				state.Status = dto.JobStatusQueued
			})
			return err
		}
		finished := time.Now().UTC()
		s.store.Update(job.ID, func(state *dto.SchedulerJob) {
			state.Status = dto.JobStatusFailed
			state.Error = err.Error()
			state.FinishedAt = &finished
		})
		return fmt.Errorf("%w: %v", jobs.ErrPermanent, err)
	}

	finished := time.Now().UTC()
	s.store.Update(job.ID, func(state *dto.SchedulerJob) {
		state.Status = dto.JobStatusSucceeded
		state.Result = result
		state.FinishedAt = &finished
	})
	return nil
}

func (s *SchedulerJobService) execute(ctx context.Context, job jobs.Job) (interface{}, error) {
	switch payload := job.Payload.(type) {
	case dto.RunGroupingRequest:
		return s.grouping.RunGrouping(ctx, payload)
	case dto.BatchAssignRequest:
		return s.batch.RunBatchAssign(ctx, payload)
	case dto.ReoptimizeRequest:
		return s.reoptimize.RunReoptimize(ctx, payload)
	default:
		return nil, errors.New("unsupported scheduler job payload")
	}
}

// jobStore keeps job states in memory; finished jobs expire after ttl.
type jobStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]dto.SchedulerJob
}

func newJobStore(ttl time.Duration) *jobStore {
	return &jobStore{
		ttl:   ttl,
		items: make(map[string]dto.SchedulerJob),
	}
}

// Save stores job and evicts finished jobs past their TTL, so results nobody
// polls do not accumulate.
func (s *jobStore) Save(job dto.SchedulerJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(time.Now())
	s.items[job.ID] = job
}

func (s *jobStore) sweepLocked(now time.Time) {
	for id, job := range s.items {
		if s.expired(job, now) {
			delete(s.items, id)
		}
	}
}

func (s *jobStore) expired(job dto.SchedulerJob, now time.Time) bool {
	return job.FinishedAt != nil && now.Sub(*job.FinishedAt) > s.ttl
}

func (s *jobStore) Update(id string, fn func(*dto.SchedulerJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.items[id]
	if !ok {
		return
	}
	fn(&job)
	s.items[id] = job
}

func (s *jobStore) Get(id string) (dto.SchedulerJob, bool) {
	s.mu.RLock()
	job, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.SchedulerJob{}, false
	}
	if s.expired(job, time.Now()) {
		s.Delete(id)
		return dto.SchedulerJob{}, false
	}
	return job, true
}

func (s *jobStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
