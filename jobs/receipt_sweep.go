package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/velora-crm/velora-pos/internal/jobs"
	"github.com/velora-crm/velora-pos/internal/receipts"
	"github.com/velora-crm/velora-pos/internal/shared"
)

const (
	// TaskReceiptSweep scans accepted receipts for missing expense entries.
	TaskReceiptSweep = "receipts:sweep"
)

// ReceiptSweepPayload carries scheduling metadata.
type ReceiptSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReceiptSweepTask constructs an Asynq task for the nightly sweep.
func NewReceiptSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReceiptSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceiptSweep, body, asynq.Queue(QueueDefault)), nil
}

// ReceiptSweeper finds receipts that were accepted but whose expense entry
// never landed, e.g. when the process died between the two remote calls and
// nobody hit retry. Each straggler becomes an operator alert.
type ReceiptSweeper struct {
	ledger      receipts.LedgerPort
	idempotency *shared.IdempotencyStore
	alerter     *Alerter
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
}

// NewReceiptSweeper constructs a ReceiptSweeper.
func NewReceiptSweeper(ledger receipts.LedgerPort, idem *shared.IdempotencyStore, alerter *Alerter, metrics *jobmetrics.Metrics, logger *slog.Logger) *ReceiptSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptSweeper{ledger: ledger, idempotency: idem, alerter: alerter, metrics: metrics, logger: logger}
}

// Handle processes TaskReceiptSweep tasks.
func (s *ReceiptSweeper) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReceiptSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track("receipt_sweep")
	flagged, err := s.sweep(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("receipt sweep: %w", err))
	}
	s.metrics.AddFlagged("receipt_sweep", flagged)
	s.logger.Info("receipt sweep finished",
		slog.Int("flagged", flagged),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return tracker.End(nil)
}

func (s *ReceiptSweeper) sweep(ctx context.Context) (int, error) {
	flagged := 0
	for page := 1; ; page++ {
		batch, err := s.ledger.ListProducts(ctx, receipts.Filter{
			Status:  receipts.StatusAccepted,
			Page:    page,
			PerPage: 200,
		})
		if err != nil {
			return flagged, err
		}
		if len(batch) == 0 {
			return flagged, nil
		}
		for _, receipt := range batch {
			if !receipt.ExpenseAmount().IsPositive() {
				continue
			}
			recorded, err := s.idempotency.Exists(ctx, "RECEIPT-EXPENSE:"+receipt.ID)
			if err != nil {
				return flagged, err
			}
			if recorded {
				continue
			}
			flagged++
			s.alerter.PostAcceptFailed(ctx, receipt, "", errors.New("expense entry missing after accept"))
		}
		if len(batch) < 200 {
			return flagged, nil
		}
	}
}
