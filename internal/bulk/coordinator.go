// Package bulk coordinates best-effort status waves over many cash-flow
// entries at once. One ineligible or failing id never stops the rest; the
// caller gets a per-id result list plus a summary error.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/velora-crm/velora-pos/internal/cashflow"
)

// LedgerPort is the slice of the ledger store the coordinator drives.
type LedgerPort interface {
	GetCashFlow(ctx context.Context, id string) (cashflow.Entry, error)
	SetCashFlowStatus(ctx context.Context, update cashflow.StatusUpdate) (cashflow.Entry, error)
	BulkSetCashFlowStatus(ctx context.Context, updates []cashflow.StatusUpdate) ([]cashflow.Entry, error)
}

// CompensationPort undoes the originating operation of a rejected entry.
type CompensationPort interface {
	Compensate(ctx context.Context, tag cashflow.OriginTag, originRef string) error
}

// MetricsPort counts per-entry transition outcomes.
type MetricsPort interface {
	ObserveTransition(entity, target string, err error)
}

// ErrPartialFailure is the summary error when at least one id in a batch
// failed while others went through. Per-id causes live in the item results.
var ErrPartialFailure = errors.New("bulk: some entries failed")

// concurrency caps the per-id waves against the ledger store.
const concurrency = 8

// ItemResult is the outcome for one id in a batch.
type ItemResult struct {
	ID              string `json:"id"`
	Err             error  `json:"-"`
	CompensationErr error  `json:"-"`
}

// Failed reports whether the transition itself did not go through.
// A compensation failure alone does not fail the item: the transition
// committed and stands.
func (r ItemResult) Failed() bool { return r.Err != nil }

// Result is the outcome of one batch.
type Result struct {
	BatchID     uuid.UUID    `json:"batch_id"`
	Items       []ItemResult `json:"items"`
	FailedCount int          `json:"failed_count"`
	Err         error        `json:"-"`
}

// Coordinator runs bulk transitions.
type Coordinator struct {
	ledger      LedgerPort
	compensator CompensationPort
	metrics     MetricsPort
	logger      *slog.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(ledger LedgerPort, compensator CompensationPort, metrics MetricsPort, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{ledger: ledger, compensator: compensator, metrics: metrics, logger: logger}
}

// Transition applies target to every id, best effort. Ineligible entries
// (already decided, unknown id, approve without a cash register) fail
// individually; eligible entries go through a batched status call with a
// per-id fallback. Rejections are compensated after the whole wave so a
// failing undo cannot stall the remaining transitions.
func (c *Coordinator) Transition(ctx context.Context, ids []string, target cashflow.Status, cashboxRef string) (Result, error) {
	result := Result{BatchID: uuid.New()}
	if target != cashflow.StatusApproved && target != cashflow.StatusRejected {
		return result, fmt.Errorf("%w: bulk target must be approved or rejected, got %q", cashflow.ErrInvalidTransition, target)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return result, nil
	}

	entries, prefetchErrs := c.prefetch(ctx, ids)

	items := make([]ItemResult, len(ids))
	var updates []cashflow.StatusUpdate
	updateIdx := make(map[string]int, len(ids))
	for i, id := range ids {
		items[i] = ItemResult{ID: id}
		entry, ok := entries[id]
		if !ok {
			items[i].Err = prefetchErrs[id]
			continue
		}
		if entry.Status != cashflow.StatusPending {
			items[i].Err = fmt.Errorf("%w: entry %s is %s", cashflow.ErrInvalidTransition, id, entry.Status)
			continue
		}
		update := cashflow.StatusUpdate{ID: id, Status: target}
		if target == cashflow.StatusApproved && entry.CashboxRef == "" {
			if cashboxRef == "" {
				items[i].Err = fmt.Errorf("%w: entry %s", cashflow.ErrMissingCashbox, id)
				continue
			}
			update.CashboxRef = cashboxRef
		}
		updateIdx[id] = i
		updates = append(updates, update)
	}

	transitioned := c.applyWave(ctx, updates, items, updateIdx)

	if target == cashflow.StatusRejected {
		for _, entry := range transitioned {
			// Origin data comes from the pre-fetched entries; the status
			// endpoints are not required to echo origin fields back.
			pre, ok := entries[entry.ID]
			if !ok {
				continue
			}
			i := updateIdx[entry.ID]
			if compErr := c.compensator.Compensate(ctx, pre.OriginTag, pre.OriginRef); compErr != nil {
				c.logger.Error("bulk compensation failed",
					slog.String("batch_id", result.BatchID.String()),
					slog.String("entry_id", entry.ID),
					slog.String("origin_tag", string(pre.OriginTag)),
					slog.Any("error", compErr))
				items[i].CompensationErr = compErr
			}
		}
	}

	for _, item := range items {
		if item.Failed() {
			result.FailedCount++
		}
		if c.metrics != nil {
			c.metrics.ObserveTransition("cashflow", string(target), item.Err)
		}
	}
	result.Items = items
	if result.FailedCount > 0 {
		result.Err = fmt.Errorf("%w: %d of %d", ErrPartialFailure, result.FailedCount, len(ids))
	}
	return result, result.Err
}

// prefetch loads every id concurrently. Errors are stored per id and become
// per-item failures; a missing entry never aborts the batch.
func (c *Coordinator) prefetch(ctx context.Context, ids []string) (map[string]cashflow.Entry, map[string]error) {
	var mu sync.Mutex
	entries := make(map[string]cashflow.Entry, len(ids))
	errsByID := make(map[string]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			entry, err := c.ledger.GetCashFlow(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errsByID[id] = err
				return nil
			}
			entries[id] = entry
			return nil
		})
	}
	_ = g.Wait()
	return entries, errsByID
}

// applyWave pushes the eligible updates to the ledger store. The batched
// endpoint is tried first; ids the backend skipped come back as invalid
// transitions (a concurrent operator got there first). If the batched call
// itself fails the wave degrades to per-id calls so one flaky request
// cannot sink the whole batch.
func (c *Coordinator) applyWave(ctx context.Context, updates []cashflow.StatusUpdate, items []ItemResult, updateIdx map[string]int) []cashflow.Entry {
	if len(updates) == 0 {
		return nil
	}

	transitioned, err := c.ledger.BulkSetCashFlowStatus(ctx, updates)
	if err == nil {
		applied := make(map[string]bool, len(transitioned))
		for _, entry := range transitioned {
			applied[entry.ID] = true
		}
		for _, update := range updates {
			if !applied[update.ID] {
				items[updateIdx[update.ID]].Err = fmt.Errorf("%w: entry %s", cashflow.ErrInvalidTransition, update.ID)
			}
		}
		return transitioned
	}
	c.logger.Warn("batched status call failed, falling back to per-id wave", slog.Any("error", err))

	var mu sync.Mutex
	transitioned = transitioned[:0]
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, update := range updates {
		g.Go(func() error {
			entry, err := c.ledger.SetCashFlowStatus(gctx, update)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				items[updateIdx[update.ID]].Err = err
				return nil
			}
			transitioned = append(transitioned, entry)
			return nil
		})
	}
	_ = g.Wait()
	return transitioned
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
