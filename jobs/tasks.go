package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueOps carries operator alerts and is drained with priority.
	QueueOps = "ops"

	// TaskTypeOpsAlert is the task type for operator alerts.
	TaskTypeOpsAlert = "ops:alert"
)

// Alert kinds carried by TaskTypeOpsAlert.
const (
	AlertCompensationFailed = "compensation_failed"
	AlertPostAcceptFailed   = "post_accept_failed"
)

// OpsAlertPayload describes a committed transition whose follow-up remote
// action failed and now needs a human.
type OpsAlertPayload struct {
	Kind       string    `json:"kind"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	OriginTag  string    `json:"origin_tag,omitempty"`
	OriginRef  string    `json:"origin_ref,omitempty"`
	CashboxRef string    `json:"cashbox_ref,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Cause      string    `json:"cause"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewOpsAlertTask constructs an Asynq task.
func NewOpsAlertTask(payload OpsAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOpsAlert, data, asynq.Queue(QueueOps)), nil
}

// NewOpsAlertHandler processes TaskTypeOpsAlert tasks. Delivery is a loud
// structured log line; on-call tooling tails these.
// TODO: deliver to the Telegram ops channel once its bot token ships.
func NewOpsAlertHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OpsAlertPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Error("operator alert",
			slog.String("kind", payload.Kind),
			slog.String("entity", payload.Entity),
			slog.String("entity_id", payload.EntityID),
			slog.String("origin_tag", payload.OriginTag),
			slog.String("origin_ref", payload.OriginRef),
			slog.String("cause", payload.Cause),
			slog.Time("occurred_at", payload.OccurredAt))
		return nil
	}
}
