package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/shared"
)

// LedgerPort describes the ledger store operations used by Service.
type LedgerPort interface {
	GetProduct(ctx context.Context, id string) (Receipt, error)
	SetProductStatus(ctx context.Context, id string, status Status) (Receipt, error)
	ListProducts(ctx context.Context, filter Filter) ([]Receipt, error)
	CreateCashFlow(ctx context.Context, entry cashflow.Entry) (cashflow.Entry, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AlertPort pushes operator alerts for failures that need human follow-up.
type AlertPort interface {
	PostAcceptFailed(ctx context.Context, receipt Receipt, cashboxRef string, cause error)
}

// Service runs the inventory-receipt side of the approval state machine.
type Service struct {
	ledger      LedgerPort
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	alerts      AlertPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewService constructs the receipts service.
func NewService(ledger LedgerPort, approvals *shared.ApprovalRecorder, audit AuditPort, alerts AlertPort, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, approvals: approvals, audit: audit, alerts: alerts, idempotency: idem, logger: logger}
}

// List returns receipts matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Receipt, error) {
	return s.ledger.ListProducts(ctx, filter)
}

// Accept transitions a pending receipt to accepted and, when its monetary
// effect is positive, creates the correlated pending expense entry in the
// ledger store. The two steps are separate remote calls: if the second one
// fails the receipt stays accepted and the caller gets ErrPostAcceptEffect,
// because rolling back a persisted remote transition would itself need a
// compensating call. The operator retries via RetryExpenseEntry.
func (s *Service) Accept(ctx context.Context, id, cashboxRef string, actorID int64) (Receipt, *cashflow.Entry, error) {
	receipt, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return Receipt{}, nil, err
	}
	if receipt.Status != StatusPending {
		return Receipt{}, nil, fmt.Errorf("%w: receipt %s is %s", ErrInvalidTransition, id, receipt.Status)
	}
	if cashboxRef == "" && receipt.ExpenseAmount().IsPositive() {
		return Receipt{}, nil, fmt.Errorf("%w: receipt %s", cashflow.ErrMissingCashbox, id)
	}

	updated, err := s.setStatus(ctx, id, StatusAccepted)
	if err != nil {
		return Receipt{}, nil, err
	}
	s.recordApproval(ctx, updated, shared.ApprovalApprove, actorID)
	s.recordAudit(ctx, "RECEIPT_ACCEPT", updated, actorID, nil)

	amount := receipt.ExpenseAmount()
	if !amount.IsPositive() {
		return updated, nil, nil
	}
	entry, err := s.createExpenseEntry(ctx, receipt, cashboxRef)
	if err != nil {
		s.logger.Error("post-accept expense entry failed",
			slog.String("receipt_id", receipt.ID),
			slog.String("amount", amount.String()),
			slog.Any("error", err))
		if s.alerts != nil {
			s.alerts.PostAcceptFailed(ctx, receipt, cashboxRef, err)
		}
		s.recordAudit(ctx, "RECEIPT_POST_ACCEPT_FAILED", updated, actorID, map[string]any{"cause": err.Error()})
		return updated, nil, fmt.Errorf("%w: %v", ErrPostAcceptEffect, err)
	}
	return updated, &entry, nil
}

// Reject transitions a pending receipt to rejected. Rejecting a receipt has
// no side effects to unwind: the stock never entered the books.
func (s *Service) Reject(ctx context.Context, id string, actorID int64) (Receipt, error) {
	receipt, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	if receipt.Status != StatusPending {
		return Receipt{}, fmt.Errorf("%w: receipt %s is %s", ErrInvalidTransition, id, receipt.Status)
	}
	updated, err := s.setStatus(ctx, id, StatusRejected)
	if err != nil {
		return Receipt{}, err
	}
	s.recordApproval(ctx, updated, shared.ApprovalReject, actorID)
	s.recordAudit(ctx, "RECEIPT_REJECT", updated, actorID, nil)
	return updated, nil
}

// Archive moves an accepted receipt to history when the stock ships onward.
// Only accepted receipts qualify; the step is one-directional.
func (s *Service) Archive(ctx context.Context, id string, actorID int64) (Receipt, error) {
	receipt, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	if receipt.Status != StatusAccepted {
		return Receipt{}, fmt.Errorf("%w: receipt %s is %s", ErrInvalidTransition, id, receipt.Status)
	}
	updated, err := s.setStatus(ctx, id, StatusHistory)
	if err != nil {
		return Receipt{}, err
	}
	s.recordApproval(ctx, updated, shared.ApprovalArchive, actorID)
	s.recordAudit(ctx, "RECEIPT_ARCHIVE", updated, actorID, nil)
	return updated, nil
}

// RetryExpenseEntry re-issues the expense entry for a receipt stuck in the
// accepted-but-uncompensated state after a post-accept failure. Guarded by
// the idempotency store so a double retry cannot create two entries.
func (s *Service) RetryExpenseEntry(ctx context.Context, id, cashboxRef string, actorID int64) (cashflow.Entry, error) {
	receipt, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return cashflow.Entry{}, err
	}
	if receipt.Status != StatusAccepted {
		return cashflow.Entry{}, fmt.Errorf("%w: receipt %s is %s", ErrInvalidTransition, id, receipt.Status)
	}
	if cashboxRef == "" {
		return cashflow.Entry{}, fmt.Errorf("%w: receipt %s", cashflow.ErrMissingCashbox, id)
	}
	if !receipt.ExpenseAmount().IsPositive() {
		return cashflow.Entry{}, fmt.Errorf("%w: receipt %s has no monetary effect", ErrInvalidTransition, id)
	}
	entry, err := s.createExpenseEntry(ctx, receipt, cashboxRef)
	if err != nil {
		return cashflow.Entry{}, err
	}
	s.recordAudit(ctx, "RECEIPT_EXPENSE_RETRY", receipt, actorID, map[string]any{"entry_id": entry.ID})
	return entry, nil
}

func (s *Service) createExpenseEntry(ctx context.Context, receipt Receipt, cashboxRef string) (cashflow.Entry, error) {
	key := fmt.Sprintf("RECEIPT-EXPENSE:%s", receipt.ID)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "receipts.expense"); err != nil {
			return cashflow.Entry{}, err
		}
		inserted = true
	}
	entry := cashflow.Entry{
		Name:       receipt.Name,
		Kind:       cashflow.KindExpense,
		Amount:     receipt.ExpenseAmount(),
		CashboxRef: cashboxRef,
		Status:     cashflow.StatusPending,
		OriginTag:  cashflow.OriginWarehouse,
		OriginRef:  receipt.ID,
	}
	created, err := s.ledger.CreateCashFlow(ctx, entry)
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return cashflow.Entry{}, err
	}
	return created, nil
}

func (s *Service) setStatus(ctx context.Context, id string, status Status) (Receipt, error) {
	updated, err := s.ledger.SetProductStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return Receipt{}, fmt.Errorf("%w: receipt %s", ErrInvalidTransition, id)
		}
		return Receipt{}, err
	}
	return updated, nil
}

func (s *Service) recordApproval(ctx context.Context, receipt Receipt, action shared.ApprovalAction, actorID int64) {
	if s.approvals == nil {
		return
	}
	note := fmt.Sprintf("%s x%d %s", receipt.Name, receipt.Quantity, shared.FormatMoney(receipt.ExpenseAmount()))
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  shared.ApprovalModuleReceipt,
		RefID:   receipt.ID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

func (s *Service) recordAudit(ctx context.Context, action string, receipt Receipt, actorID int64, extra map[string]any) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"quantity":       receipt.Quantity,
		"purchase_price": receipt.PurchasePrice.String(),
		"supplier_ref":   receipt.SupplierRef,
	}
	for k, v := range extra {
		meta[k] = v
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityReceipt,
		EntityID: receipt.ID,
		Note:     shared.FormatMoney(receipt.ExpenseAmount()),
		Meta:     meta,
	})
}
