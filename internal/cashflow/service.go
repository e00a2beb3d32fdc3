package cashflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/velora-crm/velora-pos/internal/shared"
)

// LedgerPort describes the ledger store operations used by Service.
type LedgerPort interface {
	GetCashFlow(ctx context.Context, id string) (Entry, error)
	SetCashFlowStatus(ctx context.Context, update StatusUpdate) (Entry, error)
	ListCashFlows(ctx context.Context, filter Filter) ([]Entry, error)
}

// CompensationPort undoes the side effects of an entry's originating
// operation after a rejection.
type CompensationPort interface {
	Compensate(ctx context.Context, tag OriginTag, originRef string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AlertPort pushes operator alerts for failures that need human follow-up.
type AlertPort interface {
	CompensationFailed(ctx context.Context, entry Entry, cause error)
}

// Service runs the cash-flow side of the approval state machine.
type Service struct {
	ledger      LedgerPort
	compensator CompensationPort
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	alerts      AlertPort
	logger      *slog.Logger
}

// NewService constructs the cash-flow service.
func NewService(ledger LedgerPort, compensator CompensationPort, approvals *shared.ApprovalRecorder, audit AuditPort, alerts AlertPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, compensator: compensator, approvals: approvals, audit: audit, alerts: alerts, logger: logger}
}

// List returns entries matching the filter, statuses already normalised.
func (s *Service) List(ctx context.Context, filter Filter) ([]Entry, error) {
	return s.ledger.ListCashFlows(ctx, filter)
}

// Approve transitions a pending entry to approved. cashboxRef is required
// only when the entry itself carries no cash register.
func (s *Service) Approve(ctx context.Context, id, cashboxRef string, actorID int64) (Entry, error) {
	entry, err := s.ledger.GetCashFlow(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusPending {
		return Entry{}, fmt.Errorf("%w: entry %s is %s", ErrInvalidTransition, id, entry.Status)
	}
	update := StatusUpdate{ID: id, Status: StatusApproved}
	if entry.CashboxRef == "" {
		if cashboxRef == "" {
			return Entry{}, fmt.Errorf("%w: entry %s", ErrMissingCashbox, id)
		}
		update.CashboxRef = cashboxRef
	}
	updated, err := s.setStatus(ctx, update)
	if err != nil {
		return Entry{}, err
	}
	s.recordApproval(ctx, updated, shared.ApprovalApprove, actorID)
	s.recordAudit(ctx, "CASHFLOW_APPROVE", updated, actorID, nil)
	return updated, nil
}

// Reject transitions a pending entry to rejected, then compensates the
// originating operation. A compensation failure does not undo the already
// committed transition; it is surfaced to the caller and pushed to the ops
// queue, never retried automatically.
func (s *Service) Reject(ctx context.Context, id string, actorID int64) (Entry, error) {
	entry, err := s.ledger.GetCashFlow(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusPending {
		return Entry{}, fmt.Errorf("%w: entry %s is %s", ErrInvalidTransition, id, entry.Status)
	}
	updated, err := s.setStatus(ctx, StatusUpdate{ID: id, Status: StatusRejected})
	if err != nil {
		return Entry{}, err
	}
	s.recordApproval(ctx, updated, shared.ApprovalReject, actorID)
	s.recordAudit(ctx, "CASHFLOW_REJECT", updated, actorID, nil)

	if compErr := s.compensator.Compensate(ctx, entry.OriginTag, entry.OriginRef); compErr != nil {
		s.logger.Error("compensation failed",
			slog.String("entry_id", entry.ID),
			slog.String("origin_tag", string(entry.OriginTag)),
			slog.String("origin_ref", entry.OriginRef),
			slog.Any("error", compErr))
		if s.alerts != nil {
			s.alerts.CompensationFailed(ctx, entry, compErr)
		}
		s.recordAudit(ctx, "CASHFLOW_COMPENSATION_FAILED", updated, actorID, map[string]any{"cause": compErr.Error()})
		return updated, compErr
	}
	return updated, nil
}

func (s *Service) setStatus(ctx context.Context, update StatusUpdate) (Entry, error) {
	updated, err := s.ledger.SetCashFlowStatus(ctx, update)
	if err != nil {
		// A concurrent approver may have won the race; the backend then
		// reports a conflict because the entry is no longer pending.
		if errors.Is(err, shared.ErrConflict) {
			return Entry{}, fmt.Errorf("%w: entry %s", ErrInvalidTransition, update.ID)
		}
		return Entry{}, err
	}
	return updated, nil
}

func (s *Service) recordApproval(ctx context.Context, entry Entry, action shared.ApprovalAction, actorID int64) {
	if s.approvals == nil {
		return
	}
	note := fmt.Sprintf("%s %s (%s)", entry.Name, shared.FormatMoney(entry.Amount), entry.Kind)
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  shared.ApprovalModuleCashFlow,
		RefID:   entry.ID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

func (s *Service) recordAudit(ctx context.Context, action string, entry Entry, actorID int64, extra map[string]any) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"kind":       string(entry.Kind),
		"amount":     entry.Amount.String(),
		"origin_tag": string(entry.OriginTag),
		"origin_ref": entry.OriginRef,
	}
	for k, v := range extra {
		meta[k] = v
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityCashFlow,
		EntityID: entry.ID,
		Note:     shared.FormatMoney(entry.Amount),
		Meta:     meta,
	})
}
