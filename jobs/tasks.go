package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/keystone-pm/keystone/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries decision events awaiting durable storage.
	QueueAudit = "audit"

	// TaskAuditRecord persists one decision event.
	TaskAuditRecord = "audit:record"
	// TaskAuditPurge enforces the audit retention horizon.
	TaskAuditPurge = "audit:purge"
)

// AuditPurgePayload configures a retention sweep.
type AuditPurgePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewAuditRecordTask wraps a decision event as an Asynq task.
func NewAuditRecordTask(event audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data,
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second)), nil
}

// NewAuditPurgeTask constructs a retention sweep task.
func NewAuditPurgeTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPurgePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data, asynq.Queue(QueueDefault)), nil
}
