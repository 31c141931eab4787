package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/status"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
)

// averageJobDuration is the rough per-job cost used for wait estimates
// shown to pollers. Generation dominates, so this tracks the generation
// timeout ballpark rather than measured latency.
const averageJobDuration = 90 * time.Second

// Priority tiers derived from the requester's purchase history.
const (
	priorityHigh    = 3
	priorityMedium  = 2
	priorityDefault = 1

	highTierPurchases = 20
)

// FittingService is the in-process API of the engine: enqueue a fitting
// request, poll its status.
type FittingService struct {
	store         store.Store
	statusStore   *status.Store
	maxAttempts   int
	maxConcurrent int
}

func NewFittingService(s store.Store, statusStore *status.Store, maxAttempts, maxConcurrent int) *FittingService {
	return &FittingService{
		store:         s,
		statusStore:   statusStore,
		maxAttempts:   maxAttempts,
		maxConcurrent: maxConcurrent,
	}
}

// Enqueue validates the request, computes the priority tier from the
// requester's purchase history and appends a queued job. The job's status
// record is seeded with its queue position and a wait estimate.
func (s *FittingService) Enqueue(ctx context.Context, requesterID, sourceImageRef, targetItemID string) (*model.Job, error) {
	if requesterID == "" {
		return nil, NewErrInvalidRequest("requester id is required")
	}
	if sourceImageRef == "" {
		return nil, NewErrInvalidRequest("source image is required")
	}
	if targetItemID == "" {
		return nil, NewErrInvalidRequest("target item id is required")
	}

	purchases, err := s.store.Credit().PurchaseCount(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job := model.Job{
		ID:             uuid.New(),
		RequesterID:    requesterID,
		SourceImageRef: sourceImageRef,
		TargetItemID:   targetItemID,
		Status:         model.JobStatusQueued,
		Priority:       priorityTier(purchases),
		MaxAttempts:    s.maxAttempts,
		EnqueuedAt:     now,
		NextAttemptAt:  now,
	}

	created, err := s.store.Job().Create(ctx, job)
	if err != nil {
		return nil, err
	}

	position, err := s.store.Job().CountQueuedAhead(ctx, created.Priority, created.EnqueuedAt)
	if err != nil {
		zap.S().Named("fitting_service").Warnw("failed to compute queue position", "job_id", created.ID, "error", err)
		position = 0
	}
	s.statusStore.Set(created.ID, model.JobStatusQueued,
		status.WithPosition(position+1),
		status.WithEstimatedWait(estimateWait(position+1, s.maxConcurrent)),
	)

	zap.S().Named("fitting_service").Infow("job enqueued",
		"job_id", created.ID, "requester_id", requesterID, "priority", created.Priority)
	return created, nil
}

// GetStatus returns the poller view of a job. The status store is the
// primary source; when its record expired the job table is consulted so a
// still-persisted job remains visible. A miss in both means "unknown".
func (s *FittingService) GetStatus(ctx context.Context, jobID uuid.UUID) (*status.Record, error) {
	record, err := s.statusStore.Get(jobID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, status.ErrNotFound) {
		return nil, err
	}

	job, err := s.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}

	record = &status.Record{
		JobID:     job.ID,
		Status:    job.Status,
		ResultRef: job.ResultRef,
		Error:     job.LastError,
		UpdatedAt: job.UpdatedAt,
	}
	return record, nil
}

func priorityTier(purchases int) int {
	switch {
	case purchases > highTierPurchases:
		return priorityHigh
	case purchases > 0:
		return priorityMedium
	default:
		return priorityDefault
	}
}

func estimateWait(position, maxConcurrent int) time.Duration {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	rounds := (position + maxConcurrent - 1) / maxConcurrent
	return time.Duration(rounds) * averageJobDuration
}
