package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/keystone-pm/keystone/internal/audit"
)

// AuditEnqueuer implements audit.Sink by handing events to the queue.
// The worker persists them, so a slow database never sits on the web
// process's audit path and events survive a web restart once enqueued.
type AuditEnqueuer struct {
	client *asynq.Client
}

// NewAuditEnqueuer wraps an Asynq client as an audit sink.
func NewAuditEnqueuer(client *asynq.Client) *AuditEnqueuer {
	return &AuditEnqueuer{client: client}
}

// Write enqueues one decision event.
func (e *AuditEnqueuer) Write(ctx context.Context, event audit.Event) error {
	task, err := NewAuditRecordTask(event)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task)
	return err
}

// Close releases the underlying client.
func (e *AuditEnqueuer) Close() error {
	return e.client.Close()
}

var _ audit.Sink = (*AuditEnqueuer)(nil)

// AuditPersistJob writes queued decision events into PostgreSQL.
type AuditPersistJob struct {
	sink   audit.Sink
	logger *slog.Logger
}

// NewAuditPersistJob builds the persist handler over the durable sink.
func NewAuditPersistJob(sink audit.Sink, logger *slog.Logger) *AuditPersistJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPersistJob{sink: sink, logger: logger}
}

// Handle processes one TaskAuditRecord task.
func (j *AuditPersistJob) Handle(ctx context.Context, t *asynq.Task) error {
	var event audit.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		j.logger.Error("decode audit event", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if err := j.sink.Write(ctx, event); err != nil {
		j.logger.Warn("persist audit event",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
		return err
	}
	return nil
}

// AuditPurgeJob enforces the retention horizon on stored events.
type AuditPurgeJob struct {
	service *audit.Service
	logger  *slog.Logger
}

// NewAuditPurgeJob builds the purge handler.
func NewAuditPurgeJob(service *audit.Service, logger *slog.Logger) *AuditPurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPurgeJob{service: service, logger: logger}
}

// Handle processes one TaskAuditPurge task.
func (j *AuditPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 180
	}
	retention := time.Duration(payload.RetentionDays) * 24 * time.Hour
	purged, err := j.service.PurgeOlderThan(ctx, retention)
	if err != nil {
		return err
	}
	j.logger.Info("audit retention sweep",
		slog.Int("retention_days", payload.RetentionDays),
		slog.Int64("purged", purged))
	return nil
}
