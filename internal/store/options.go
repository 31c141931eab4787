package store

import (
	"time"

	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByStatus(status string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}

func (qf *JobQueryFilter) ByRequesterID(requesterID string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("requester_id = ?", requesterID)
	})
	return qf
}

// EligibleAt restricts to queued jobs whose backoff delay elapsed.
func (qf *JobQueryFilter) EligibleAt(now time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ? AND next_attempt_at <= ?", "queued", now)
	})
	return qf
}

type JobQueryOptions BaseQuerier

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

// WithSchedulingOrder applies the queue's total order: priority first,
// enqueue time as the tie break.
func (o *JobQueryOptions) WithSchedulingOrder() *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Order("priority DESC").Order("enqueued_at ASC")
	})
	return o
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}
