package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const defaultExpiryBatch = 500

// VersionExpirer is the slice of the quoting service the sweep needs.
type VersionExpirer interface {
	ExpireOverdueVersions(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewVersionExpiryHandler returns the handler for the expiry sweep task.
func NewVersionExpiryHandler(expirer VersionExpirer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload VersionExpiryPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		limit := payload.BatchLimit
		if limit <= 0 {
			limit = defaultExpiryBatch
		}

		expired, err := expirer.ExpireOverdueVersions(ctx, time.Now(), limit)
		if err != nil {
			logger.Error("version expiry sweep failed",
				slog.Int("expired", expired), slog.Any("error", err))
			return err
		}
		if expired > 0 {
			logger.Info("expired overdue quotation versions", slog.Int("count", expired))
		}
		return nil
	}
}
