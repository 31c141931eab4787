package status

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// ErrNotFound is an expected outcome for pollers: records expire on their
// own TTL, independent of the job's lifetime. Callers must treat it as
// "unknown", not "still queued".
var ErrNotFound = errors.New("status record not found")

// Record mirrors a coarse view of job progress for polling clients.
type Record struct {
	JobID         uuid.UUID      `json:"job_id"`
	Status        string         `json:"status"`
	Position      *int           `json:"position,omitempty"`
	EstimatedWait *time.Duration `json:"estimated_wait,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	ResultRef     *string        `json:"result_ref,omitempty"`
	Error         *string        `json:"error,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type Field func(r *Record)

func WithPosition(position int) Field {
	return func(r *Record) { r.Position = &position }
}

func WithEstimatedWait(wait time.Duration) Field {
	return func(r *Record) { r.EstimatedWait = &wait }
}

func WithStartedAt(t time.Time) Field {
	return func(r *Record) { r.StartedAt = &t }
}

func WithResultRef(ref string) Field {
	return func(r *Record) { r.ResultRef = &ref }
}

func WithError(message string) Field {
	return func(r *Record) { r.Error = &message }
}

// Store keeps short-lived per-job progress records. The scheduler writes,
// polling clients read.
type Store struct {
	records *gocache.Cache
	ttl     time.Duration
	mu      sync.Mutex
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		records: gocache.New(ttl, 10*time.Minute),
		ttl:     ttl,
	}
}

// Set merges fields into the existing record, or creates one, stamping
// UpdatedAt. Every write resets the record's TTL.
func (s *Store) Set(jobID uuid.UUID, jobStatus string, fields ...Field) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &Record{JobID: jobID}
	if existing, found := s.records.Get(jobID.String()); found {
		current := *existing.(*Record)
		record = &current
	}

	record.Status = jobStatus
	for _, f := range fields {
		f(record)
	}
	record.UpdatedAt = time.Now()

	s.records.Set(jobID.String(), record, s.ttl)
}

func (s *Store) Get(jobID uuid.UUID) (*Record, error) {
	existing, found := s.records.Get(jobID.String())
	if !found {
		return nil, ErrNotFound
	}
	record := *existing.(*Record)
	return &record, nil
}
