package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
)

type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Claim(ctx context.Context, id uuid.UUID) (*model.Job, error)
	Update(ctx context.Context, id uuid.UUID, fields JobUpdate) (*model.Job, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	CountQueuedAhead(ctx context.Context, priority int, enqueuedAt time.Time) (int, error)
	RequeueProcessing(ctx context.Context) (int, error)
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// JobUpdate lists the mutable job fields. Nil pointers are left untouched.
type JobUpdate struct {
	Status        *string
	Attempts      *int
	LastError     *string
	ResultRef     *string
	NextAttemptAt *time.Time
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	result := s.getDB(ctx).Create(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating job: %w", result.Error)
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	result := s.getDB(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	tx := s.getDB(ctx).Model(&model.Job{})
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	var jobs model.JobList
	if result := tx.Find(&jobs); result.Error != nil {
		return nil, fmt.Errorf("listing jobs: %w", result.Error)
	}
	return jobs, nil
}

// Claim atomically moves a queued job to processing. It returns
// ErrRecordNotFound when another worker claimed the job first, which is
// what prevents double processing.
func (s *JobStore) Claim(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusQueued).
		Update("status", model.JobStatusProcessing)
	if result.Error != nil {
		return nil, fmt.Errorf("claiming job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return s.Get(ctx, id)
}

func (s *JobStore) Update(ctx context.Context, id uuid.UUID, fields JobUpdate) (*model.Job, error) {
	job := model.NewJobFromId(id)
	selectFields := []string{}
	if fields.Status != nil {
		job.Status = *fields.Status
		selectFields = append(selectFields, "status")
	}
	if fields.Attempts != nil {
		job.Attempts = *fields.Attempts
		selectFields = append(selectFields, "attempts")
	}
	if fields.LastError != nil {
		job.LastError = fields.LastError
		selectFields = append(selectFields, "last_error")
	}
	if fields.ResultRef != nil {
		job.ResultRef = fields.ResultRef
		selectFields = append(selectFields, "result_ref")
	}
	if fields.NextAttemptAt != nil {
		job.NextAttemptAt = *fields.NextAttemptAt
		selectFields = append(selectFields, "next_attempt_at")
	}

	result := s.getDB(ctx).Model(job).Clauses(clause.Returning{}).Select(selectFields).Updates(&job)
	if result.Error != nil {
		return nil, fmt.Errorf("updating job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return job, nil
}

func (s *JobStore) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int64
	result := s.getDB(ctx).Model(&model.Job{}).Where("status = ?", status).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("counting jobs: %w", result.Error)
	}
	return int(count), nil
}

// CountQueuedAhead returns how many queued jobs the scheduler would select
// before a job with the given priority and enqueue time.
func (s *JobStore) CountQueuedAhead(ctx context.Context, priority int, enqueuedAt time.Time) (int, error) {
	var count int64
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("status = ?", model.JobStatusQueued).
		Where("priority > ? OR (priority = ? AND enqueued_at < ?)", priority, priority, enqueuedAt).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("counting queued jobs: %w", result.Error)
	}
	return int(count), nil
}

// RequeueProcessing returns in-flight jobs to the queue. Called once at
// startup: a job left in processing means the previous process died
// mid-flight.
func (s *JobStore) RequeueProcessing(ctx context.Context) (int, error) {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("status = ?", model.JobStatusProcessing).
		Update("status", model.JobStatusQueued)
	if result.Error != nil {
		return 0, fmt.Errorf("requeueing processing jobs: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *JobStore) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result := s.getDB(ctx).
		Where("status IN ? AND updated_at < ?", []string{model.JobStatusCompleted, model.JobStatusFailed}, cutoff).
		Delete(&model.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("purging terminal jobs: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
