package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job status constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is one fitting-generation request moving through the queue.
type Job struct {
	ID             uuid.UUID `gorm:"primaryKey"`
	RequesterID    string    `gorm:"index;not null"`
	SourceImageRef string    `gorm:"not null"`
	TargetItemID   string    `gorm:"not null"`
	Status         string    `gorm:"index;not null"`
	Priority       int       `gorm:"index;not null"`
	Attempts       int
	MaxAttempts    int
	LastError      *string
	ResultRef      *string
	EnqueuedAt     time.Time `gorm:"index"`
	NextAttemptAt  time.Time `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

// Terminal reports whether the job reached a final state.
func (j Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

func NewJobFromId(id uuid.UUID) *Job {
	return &Job{ID: id}
}
