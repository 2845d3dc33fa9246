// Package jobs runs the background maintenance tasks on Asynq.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskVersionExpiry sweeps sent quotation versions past their
	// validity window.
	TaskVersionExpiry = "quotes:expire_versions"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// VersionExpiryPayload carries scheduling metadata for the expiry sweep.
type VersionExpiryPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	BatchLimit   int       `json:"batch_limit"`
}

// NewVersionExpiryTask constructs the expiry sweep task.
func NewVersionExpiryTask(at time.Time, batchLimit int) (*asynq.Task, error) {
	body, err := json.Marshal(VersionExpiryPayload{ScheduledFor: at, BatchLimit: batchLimit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVersionExpiry, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
