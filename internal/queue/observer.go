package queue

import (
	"bytes"
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/events"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/pkg/metrics"
)

// Observer is notified on every job state transition. Implementations
// must not block: the scheduler calls them inline.
type Observer interface {
	JobTransition(ctx context.Context, job *model.Job, fromStatus string)
}

// EventObserver publishes job transitions as cloudevents.
type EventObserver struct {
	producer *events.EventProducer
}

func NewEventObserver(producer *events.EventProducer) *EventObserver {
	return &EventObserver{producer: producer}
}

func (o *EventObserver) JobTransition(ctx context.Context, job *model.Job, fromStatus string) {
	event := events.JobEvent{
		JobID:       job.ID.String(),
		RequesterID: job.RequesterID,
		FromStatus:  fromStatus,
		Status:      job.Status,
		Attempts:    job.Attempts,
	}
	if job.LastError != nil {
		event.Error = *job.LastError
	}
	if job.ResultRef != nil {
		event.ResultRef = *job.ResultRef
	}

	data, err := json.Marshal(event)
	if err != nil {
		zap.S().Named("queue").Errorw("failed to marshal job event", "error", err)
		return
	}
	if err := o.producer.Write(ctx, events.JobMessageKind, bytes.NewReader(data)); err != nil {
		zap.S().Named("queue").Errorw("failed to publish job event", "error", err)
	}
}

// MetricsObserver keeps the prometheus job counters in sync with
// transitions.
type MetricsObserver struct{}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

func (o *MetricsObserver) JobTransition(_ context.Context, job *model.Job, fromStatus string) {
	switch {
	case job.Terminal():
		metrics.IncreaseFittingJobsTotalMetric(job.Status)
	case fromStatus == model.JobStatusProcessing && job.Status == model.JobStatusQueued:
		metrics.IncreaseJobRetriesTotalMetric()
	}
}
