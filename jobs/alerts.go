package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/receipts"
)

// MetricsPort counts emitted alerts.
type MetricsPort interface {
	ObserveAlert()
}

// Alerter pushes operator alerts onto the ops queue. Enqueue failures are
// logged and swallowed: an alert must never fail the transition it reports.
type Alerter struct {
	client  *Client
	metrics MetricsPort
	logger  *slog.Logger
}

// NewAlerter constructs an Alerter.
func NewAlerter(client *Client, metrics MetricsPort, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{client: client, metrics: metrics, logger: logger}
}

// CompensationFailed reports a rejected entry whose undo action errored.
func (a *Alerter) CompensationFailed(ctx context.Context, entry cashflow.Entry, cause error) {
	a.enqueue(ctx, OpsAlertPayload{
		Kind:       AlertCompensationFailed,
		Entity:     "cashflow",
		EntityID:   entry.ID,
		OriginTag:  string(entry.OriginTag),
		OriginRef:  entry.OriginRef,
		Amount:     entry.Amount.String(),
		Cause:      cause.Error(),
		OccurredAt: time.Now().UTC(),
	})
}

// PostAcceptFailed reports an accepted receipt with no expense entry.
func (a *Alerter) PostAcceptFailed(ctx context.Context, receipt receipts.Receipt, cashboxRef string, cause error) {
	a.enqueue(ctx, OpsAlertPayload{
		Kind:       AlertPostAcceptFailed,
		Entity:     "receipt",
		EntityID:   receipt.ID,
		CashboxRef: cashboxRef,
		Amount:     receipt.ExpenseAmount().String(),
		Cause:      cause.Error(),
		OccurredAt: time.Now().UTC(),
	})
}

func (a *Alerter) enqueue(ctx context.Context, payload OpsAlertPayload) {
	if a.metrics != nil {
		a.metrics.ObserveAlert()
	}
	if a.client == nil {
		return
	}
	if _, err := a.client.EnqueueOpsAlert(ctx, payload); err != nil {
		a.logger.Error("enqueue operator alert",
			slog.String("kind", payload.Kind),
			slog.String("entity_id", payload.EntityID),
			slog.Any("error", err))
	}
}
