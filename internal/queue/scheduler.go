package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/generation"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/imagecache"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/status"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/metrics"
)

const fittingPrompt = "Create a photorealistic composite of the person in the first image " +
	"wearing the product shown in the following image(s). Keep the person's pose, " +
	"face and background unchanged and match the lighting of the original photo."

// Billing is the credit ledger collaborator.
type Billing interface {
	HasSufficientCredit(ctx context.Context, requesterID string) (bool, error)
	Deduct(ctx context.Context, requesterID string) error
}

// Catalog resolves a catalog item to its source image references.
type Catalog interface {
	GetSourceImages(ctx context.Context, targetItemID string) ([]string, error)
}

// Generator produces the composite image.
type Generator interface {
	Generate(ctx context.Context, images []generation.ImagePayload, prompt string) (*generation.Result, error)
}

// ImageReader loads source image bytes by reference.
type ImageReader interface {
	ReadFile(path string) ([]byte, error)
}

// ResultWriter persists a generated image and returns its reference.
type ResultWriter interface {
	WriteResult(name string, data []byte) (string, error)
}

// Collaborators bundles the external dependencies of the scheduler.
type Collaborators struct {
	Billing   Billing
	Catalog   Catalog
	Generator Generator
	Images    ImageReader
	Results   ResultWriter
}

// Config is the scheduler tuning.
type Config struct {
	MaxConcurrent     int
	MaxAttempts       int
	RetryBackoff      time.Duration
	TickInterval      time.Duration
	RetentionAge      time.Duration
	RetentionInterval time.Duration
	ImageCacheTTL     time.Duration
}

type SchedulerOption func(s *Scheduler)

// WithClock overrides the scheduler's time source.
func WithClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithObservers(observers ...Observer) SchedulerOption {
	return func(s *Scheduler) {
		s.observers = observers
	}
}

// Scheduler owns the job lifecycle: it selects eligible queued jobs in
// priority order, dispatches them to workers gated by a semaphore sized
// to the concurrency cap, and decides retry-vs-fail on errors. It is the
// only writer of job state transitions.
type Scheduler struct {
	store       store.Store
	statusStore *status.Store
	cache       *imagecache.Cache
	optimizer   *imagecache.Optimizer
	col         Collaborators
	cfg         Config
	observers   []Observer
	sem         *semaphore.Weighted
	clock       func() time.Time
	wg          sync.WaitGroup
}

func NewScheduler(
	s store.Store,
	statusStore *status.Store,
	cache *imagecache.Cache,
	optimizer *imagecache.Optimizer,
	col Collaborators,
	cfg Config,
	opts ...SchedulerOption,
) *Scheduler {
	sched := &Scheduler{
		store:       s,
		statusStore: statusStore,
		cache:       cache,
		optimizer:   optimizer,
		col:         col,
		cfg:         cfg,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		clock:       time.Now,
	}
	for _, o := range opts {
		o(sched)
	}
	return sched
}

// Run drives Tick on a jittered ticker until the context is cancelled,
// and runs the retention sweep on its own slower cadence. In-flight jobs
// left over from a previous process are returned to the queue first.
func (s *Scheduler) Run(ctx context.Context) {
	if n, err := s.store.Job().RequeueProcessing(ctx); err != nil {
		zap.S().Named("scheduler").Errorw("failed to requeue in-flight jobs", "error", err)
	} else if n > 0 {
		zap.S().Named("scheduler").Infof("requeued %d in-flight jobs from previous run", n)
	}

	tick := jitterbug.New(s.cfg.TickInterval, &jitterbug.Norm{Stdev: 500 * time.Millisecond})
	defer tick.Stop()

	retention := time.NewTicker(s.cfg.RetentionInterval)
	defer retention.Stop()

	zap.S().Named("scheduler").Infof("scheduler started: max_concurrent=%d tick=%s", s.cfg.MaxConcurrent, s.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			zap.S().Named("scheduler").Info("scheduler stopping, waiting for workers")
			s.wg.Wait()
			return
		case <-tick.C:
			s.Tick(ctx)
		case <-retention.C:
			s.sweep(ctx)
		}
	}
}

// Tick selects up to the free concurrency slots of eligible queued jobs,
// ordered by priority then enqueue time, and dispatches each to a worker
// goroutine. Jobs still inside their backoff window are not eligible.
func (s *Scheduler) Tick(ctx context.Context) {
	processing, err := s.store.Job().CountByStatus(ctx, model.JobStatusProcessing)
	if err != nil {
		zap.S().Named("scheduler").Errorw("failed to count processing jobs", "error", err)
		return
	}

	free := s.cfg.MaxConcurrent - processing
	if free <= 0 {
		return
	}

	jobs, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().EligibleAt(s.clock()),
		store.NewJobQueryOptions().WithSchedulingOrder().WithLimit(free),
	)
	if err != nil {
		zap.S().Named("scheduler").Errorw("failed to list eligible jobs", "error", err)
		return
	}

	for i := range jobs {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}

		claimed, err := s.store.Job().Claim(ctx, jobs[i].ID)
		if err != nil {
			s.sem.Release(1)
			if errors.Is(err, store.ErrRecordNotFound) {
				// claimed by a concurrent tick
				continue
			}
			zap.S().Named("scheduler").Errorw("failed to claim job", "job_id", jobs[i].ID, "error", err)
			continue
		}

		s.notify(ctx, claimed, model.JobStatusQueued)
		s.statusStore.Set(claimed.ID, model.JobStatusProcessing, status.WithStartedAt(s.clock()))

		s.wg.Add(1)
		go func(job model.Job) {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.process(ctx, &job)
		}(*claimed)
	}

	s.updateQueueGauges(ctx)
}

// process runs one claimed job to a terminal state or back to the queue.
func (s *Scheduler) process(ctx context.Context, job *model.Job) {
	ok, err := s.col.Billing.HasSufficientCredit(ctx, job.RequesterID)
	if err != nil {
		s.handleFailure(ctx, job, fmt.Errorf("checking credit: %w", err))
		return
	}
	if !ok {
		s.failPermanently(ctx, job, "insufficient credit")
		return
	}

	images, permMsg, err := s.collectImages(ctx, job)
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}
	if permMsg != "" {
		s.failPermanently(ctx, job, permMsg)
		return
	}

	result, err := s.col.Generator.Generate(ctx, images, fittingPrompt)
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}

	s.complete(ctx, job, result)
}

// collectImages builds the generation payload: the subject photo first,
// then the optimized product images through the cache. A non-empty permMsg
// means a permanent configuration failure; err means a transient one.
func (s *Scheduler) collectImages(ctx context.Context, job *model.Job) (images []generation.ImagePayload, permMsg string, err error) {
	subject, err := s.col.Images.ReadFile(job.SourceImageRef)
	if err != nil {
		return nil, fmt.Sprintf("source image unavailable: %v", err), nil
	}
	optimizedSubject, err := s.optimizer.Optimize(subject)
	if err != nil {
		return nil, fmt.Sprintf("source image unusable: %v", err), nil
	}
	images = append(images, generation.ImagePayload{MimeType: s.optimizer.MimeType(), Data: optimizedSubject})

	refs, err := s.col.Catalog.GetSourceImages(ctx, job.TargetItemID)
	if err != nil {
		return nil, "", fmt.Errorf("resolving product images: %w", err)
	}
	if len(refs) == 0 {
		return nil, fmt.Sprintf("product %s has no source images", job.TargetItemID), nil
	}

	usable := 0
	for _, ref := range refs {
		payload, cacheErr := s.cache.GetOrCompute(ref, s.cfg.ImageCacheTTL, func() ([]byte, error) {
			raw, readErr := s.col.Images.ReadFile(ref)
			if readErr != nil {
				return nil, readErr
			}
			return s.optimizer.Optimize(raw)
		})
		if cacheErr != nil {
			zap.S().Named("scheduler").Warnw("product image unusable", "ref", ref, "error", cacheErr)
			continue
		}
		images = append(images, generation.ImagePayload{MimeType: s.optimizer.MimeType(), Data: payload})
		usable++
	}
	if usable == 0 {
		return nil, fmt.Sprintf("product %s has no usable source images", job.TargetItemID), nil
	}

	return images, "", nil
}

// complete deducts one credit and marks the job completed, atomically.
func (s *Scheduler) complete(ctx context.Context, job *model.Job, result *generation.Result) {
	resultRef, err := s.col.Results.WriteResult(job.ID.String()+".png", result.Data)
	if err != nil {
		s.handleFailure(ctx, job, fmt.Errorf("storing result: %w", err))
		return
	}

	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}

	if err := s.col.Billing.Deduct(txCtx, job.RequesterID); err != nil {
		_, _ = store.Rollback(txCtx)
		if errors.Is(err, store.ErrInsufficientCredit) {
			s.failPermanently(ctx, job, "insufficient credit")
			return
		}
		s.handleFailure(ctx, job, fmt.Errorf("deducting credit: %w", err))
		return
	}

	completed := model.JobStatusCompleted
	attempts := job.Attempts + 1
	updated, err := s.store.Job().Update(txCtx, job.ID, store.JobUpdate{
		Status:    &completed,
		Attempts:  &attempts,
		ResultRef: &resultRef,
	})
	if err != nil {
		_, _ = store.Rollback(txCtx)
		s.handleFailure(ctx, job, err)
		return
	}
	if _, err := store.Commit(txCtx); err != nil {
		s.handleFailure(ctx, job, err)
		return
	}

	s.notify(ctx, updated, model.JobStatusProcessing)
	s.statusStore.Set(job.ID, model.JobStatusCompleted, status.WithResultRef(resultRef))
	zap.S().Named("scheduler").Infow("job completed", "job_id", job.ID, "attempts", updated.Attempts)
}

// handleFailure applies the retry policy to a transient failure: the job
// goes back to the queue with a backoff delay until attempts run out.
func (s *Scheduler) handleFailure(ctx context.Context, job *model.Job, cause error) {
	attempts := job.Attempts + 1
	message := cause.Error()

	if attempts < job.MaxAttempts {
		queued := model.JobStatusQueued
		nextAttempt := s.clock().Add(s.cfg.RetryBackoff * time.Duration(attempts))
		updated, err := s.store.Job().Update(ctx, job.ID, store.JobUpdate{
			Status:        &queued,
			Attempts:      &attempts,
			LastError:     &message,
			NextAttemptAt: &nextAttempt,
		})
		if err != nil {
			zap.S().Named("scheduler").Errorw("failed to requeue job", "job_id", job.ID, "error", err)
			return
		}

		s.notify(ctx, updated, model.JobStatusProcessing)
		s.statusStore.Set(job.ID, model.JobStatusQueued, status.WithError(message))
		zap.S().Named("scheduler").Warnw("job requeued after failure",
			"job_id", job.ID, "attempts", attempts, "next_attempt_at", nextAttempt, "error", message)
		return
	}

	failed := model.JobStatusFailed
	updated, err := s.store.Job().Update(ctx, job.ID, store.JobUpdate{
		Status:    &failed,
		Attempts:  &attempts,
		LastError: &message,
	})
	if err != nil {
		zap.S().Named("scheduler").Errorw("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}

	s.notify(ctx, updated, model.JobStatusProcessing)
	s.statusStore.Set(job.ID, model.JobStatusFailed, status.WithError(message))
	zap.S().Named("scheduler").Errorw("job failed", "job_id", job.ID, "attempts", attempts, "error", message)
}

// failPermanently marks a job failed without consuming a retry attempt.
// Used for validation failures: insufficient credit, missing images.
func (s *Scheduler) failPermanently(ctx context.Context, job *model.Job, message string) {
	failed := model.JobStatusFailed
	updated, err := s.store.Job().Update(ctx, job.ID, store.JobUpdate{
		Status:    &failed,
		LastError: &message,
	})
	if err != nil {
		zap.S().Named("scheduler").Errorw("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}

	s.notify(ctx, updated, model.JobStatusProcessing)
	s.statusStore.Set(job.ID, model.JobStatusFailed, status.WithError(message))
	zap.S().Named("scheduler").Warnw("job failed permanently", "job_id", job.ID, "error", message)
}

func (s *Scheduler) sweep(ctx context.Context) {
	cutoff := s.clock().Add(-s.cfg.RetentionAge)
	n, err := s.store.Job().DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		zap.S().Named("scheduler").Errorw("retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		zap.S().Named("scheduler").Infof("retention sweep purged %d jobs", n)
	}
}

func (s *Scheduler) notify(ctx context.Context, job *model.Job, fromStatus string) {
	for _, o := range s.observers {
		o.JobTransition(ctx, job, fromStatus)
	}
}

func (s *Scheduler) updateQueueGauges(ctx context.Context) {
	for _, state := range []string{model.JobStatusQueued, model.JobStatusProcessing} {
		count, err := s.store.Job().CountByStatus(ctx, state)
		if err != nil {
			continue
		}
		metrics.UpdateFittingJobQueueSizeMetric(state, count)
	}
}
