// Package compensation maps a rejected entry's origin back to the remote
// call that undoes the originating operation's side effects.
package compensation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/shared"
)

// LedgerPort exposes the four compensation primitives of the ledger store.
type LedgerPort interface {
	DeleteProduct(ctx context.Context, id string) error
	DeleteSale(ctx context.Context, id string) error
	ReverseDebtPayment(ctx context.Context, id string) error
	DeleteRawConsumption(ctx context.Context, id string) error
}

// MetricsPort counts compensation attempts.
type MetricsPort interface {
	ObserveCompensation(origin string, err error)
}

// The dispatcher wraps failures in the shared sentinels so callers that
// cannot import this package (the cash-flow handler sits below it in the
// import graph) can still classify them.
var (
	ErrCompensationFailed = shared.ErrCompensationFailed
	ErrUnresolvedOrigin   = shared.ErrUnresolvedOrigin
)

// Dispatcher resolves an origin tag to its undo action.
type Dispatcher struct {
	ledger  LedgerPort
	metrics MetricsPort
	logger  *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(ledger LedgerPort, metrics MetricsPort, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{ledger: ledger, metrics: metrics, logger: logger}
}

// Compensate undoes the side effects of the operation that created a
// now-rejected entry. Undoing an already-undone operation (the ledger store
// answers not-found) is benign: compensation may be re-attempted after a
// partial bulk failure and must not surface a second failure.
func (d *Dispatcher) Compensate(ctx context.Context, tag cashflow.OriginTag, originRef string) error {
	if tag == cashflow.OriginNone {
		return nil
	}
	if originRef == "" {
		return fmt.Errorf("%w: tag %s", ErrUnresolvedOrigin, tag)
	}

	var err error
	switch tag {
	case cashflow.OriginWarehouse:
		err = d.ledger.DeleteProduct(ctx, originRef)
	case cashflow.OriginSale, cashflow.OriginProductionSale:
		err = d.ledger.DeleteSale(ctx, originRef)
	case cashflow.OriginDebtPayment:
		err = d.ledger.ReverseDebtPayment(ctx, originRef)
	case cashflow.OriginRawMaterial:
		err = d.ledger.DeleteRawConsumption(ctx, originRef)
	default:
		err = fmt.Errorf("unhandled origin tag %q", tag)
	}
	if errors.Is(err, shared.ErrNotFound) {
		d.logger.Info("origin record already gone, treating as compensated",
			slog.String("origin_tag", string(tag)),
			slog.String("origin_ref", originRef))
		err = nil
	}
	if d.metrics != nil {
		d.metrics.ObserveCompensation(string(tag), err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrCompensationFailed, tag, originRef, err)
	}
	return nil
}
