package bulk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/shared"
)

type memoryLedger struct {
	mu          sync.Mutex
	entries     map[string]cashflow.Entry
	bulkErr     error
	stripOrigin bool
}

func newMemoryLedger(entries ...cashflow.Entry) *memoryLedger {
	m := &memoryLedger{entries: make(map[string]cashflow.Entry)}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

func (m *memoryLedger) GetCashFlow(ctx context.Context, id string) (cashflow.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return cashflow.Entry{}, fmt.Errorf("%w: cashflow %s", shared.ErrNotFound, id)
	}
	return entry, nil
}

func (m *memoryLedger) SetCashFlowStatus(ctx context.Context, update cashflow.StatusUpdate) (cashflow.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apply(update)
}

func (m *memoryLedger) BulkSetCashFlowStatus(ctx context.Context, updates []cashflow.StatusUpdate) ([]cashflow.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bulkErr != nil {
		return nil, m.bulkErr
	}
	var out []cashflow.Entry
	for _, update := range updates {
		entry, err := m.apply(update)
		if err != nil {
			continue
		}
		if m.stripOrigin {
			entry.OriginTag = cashflow.OriginNone
			entry.OriginRef = ""
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *memoryLedger) apply(update cashflow.StatusUpdate) (cashflow.Entry, error) {
	entry, ok := m.entries[update.ID]
	if !ok {
		return cashflow.Entry{}, fmt.Errorf("%w: cashflow %s", shared.ErrNotFound, update.ID)
	}
	if entry.Status != cashflow.StatusPending {
		return cashflow.Entry{}, fmt.Errorf("%w: cashflow %s", shared.ErrConflict, update.ID)
	}
	entry.Status = update.Status
	if update.CashboxRef != "" {
		entry.CashboxRef = update.CashboxRef
	}
	m.entries[update.ID] = entry
	return entry, nil
}

type recordingCompensator struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (c *recordingCompensator) Compensate(ctx context.Context, tag cashflow.OriginTag, originRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, string(tag)+"/"+originRef)
	if c.fail != nil {
		if err, ok := c.fail[originRef]; ok {
			return err
		}
	}
	return nil
}

func entry(id string, status cashflow.Status, tag cashflow.OriginTag, ref string) cashflow.Entry {
	return cashflow.Entry{
		ID:         id,
		Name:       "Entry " + id,
		Kind:       cashflow.KindIncome,
		Amount:     decimal.NewFromInt(10),
		CashboxRef: "box-1",
		Status:     status,
		OriginTag:  tag,
		OriginRef:  ref,
	}
}

func TestTransitionApprovesAllPending(t *testing.T) {
	ledger := newMemoryLedger(
		entry("a", cashflow.StatusPending, cashflow.OriginNone, ""),
		entry("b", cashflow.StatusPending, cashflow.OriginNone, ""),
		entry("c", cashflow.StatusPending, cashflow.OriginNone, ""),
	)
	coord := NewCoordinator(ledger, &recordingCompensator{}, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"a", "b", "c"}, cashflow.StatusApproved, "")
	require.NoError(t, err)
	require.Zero(t, result.FailedCount)
	require.Len(t, result.Items, 3)
	for _, id := range []string{"a", "b", "c"} {
		require.Equal(t, cashflow.StatusApproved, ledger.entries[id].Status)
	}
}

func TestTransitionPartialFailureStillProcessesRest(t *testing.T) {
	ledger := newMemoryLedger(
		entry("a", cashflow.StatusPending, cashflow.OriginNone, ""),
		entry("b", cashflow.StatusApproved, cashflow.OriginNone, ""),
		entry("c", cashflow.StatusPending, cashflow.OriginNone, ""),
	)
	coord := NewCoordinator(ledger, &recordingCompensator{}, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"a", "b", "c"}, cashflow.StatusApproved, "")
	require.ErrorIs(t, err, ErrPartialFailure)
	require.Equal(t, 1, result.FailedCount)
	require.Equal(t, cashflow.StatusApproved, ledger.entries["a"].Status)
	require.Equal(t, cashflow.StatusApproved, ledger.entries["c"].Status)

	for _, item := range result.Items {
		if item.ID == "b" {
			require.ErrorIs(t, item.Err, cashflow.ErrInvalidTransition)
		} else {
			require.NoError(t, item.Err)
		}
	}
}

func TestTransitionRejectCompensatesEachOriginOnce(t *testing.T) {
	ledger := newMemoryLedger(
		entry("a", cashflow.StatusPending, cashflow.OriginSale, "S1"),
		entry("b", cashflow.StatusPending, cashflow.OriginWarehouse, "P1"),
		entry("c", cashflow.StatusPending, cashflow.OriginNone, ""),
	)
	comp := &recordingCompensator{}
	coord := NewCoordinator(ledger, comp, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"a", "b", "c"}, cashflow.StatusRejected, "")
	require.NoError(t, err)
	require.Zero(t, result.FailedCount)

	sort.Strings(comp.calls)
	require.Equal(t, []string{"/", "Sale/S1", "Warehouse/P1"}, comp.calls)
}

func TestTransitionRejectCompensatesWhenResponseOmitsOrigin(t *testing.T) {
	ledger := newMemoryLedger(entry("a", cashflow.StatusPending, cashflow.OriginSale, "S1"))
	ledger.stripOrigin = true
	comp := &recordingCompensator{}
	coord := NewCoordinator(ledger, comp, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"a"}, cashflow.StatusRejected, "")
	require.NoError(t, err)
	require.Zero(t, result.FailedCount)
	require.Equal(t, []string{"Sale/S1"}, comp.calls)
}

func TestTransitionCompensationFailureDoesNotFailItem(t *testing.T) {
	ledger := newMemoryLedger(entry("a", cashflow.StatusPending, cashflow.OriginSale, "S1"))
	comp := &recordingCompensator{fail: map[string]error{
		"S1": fmt.Errorf("%w: Sale S1: boom", shared.ErrCompensationFailed),
	}}
	coord := NewCoordinator(ledger, comp, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"a"}, cashflow.StatusRejected, "")
	require.NoError(t, err)
	require.Zero(t, result.FailedCount)
	require.Equal(t, cashflow.StatusRejected, ledger.entries["a"].Status)
	require.ErrorIs(t, result.Items[0].CompensationErr, shared.ErrCompensationFailed)
}

func TestTransitionFallsBackToPerIDWave(t *testing.T) {
	ledger := newMemoryLedger(
		entry("a", cashflow.StatusPending, cashflow.OriginNone, ""),
		entry("b", cashflow.StatusPending, cashflow.OriginNone, ""),
	)
	ledger.bulkErr = errors.New("batched endpoint unavailable")
	coord := NewCoordinator(ledger, &recordingCompensator{}, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"a", "b"}, cashflow.StatusApproved, "")
	require.NoError(t, err)
	require.Zero(t, result.FailedCount)
	require.Equal(t, cashflow.StatusApproved, ledger.entries["a"].Status)
	require.Equal(t, cashflow.StatusApproved, ledger.entries["b"].Status)
}

func TestTransitionMissingCashboxFailsItemOnly(t *testing.T) {
	noBox := entry("a", cashflow.StatusPending, cashflow.OriginNone, "")
	noBox.CashboxRef = ""
	ledger := newMemoryLedger(noBox, entry("b", cashflow.StatusPending, cashflow.OriginNone, ""))
	coord := NewCoordinator(ledger, &recordingCompensator{}, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"a", "b"}, cashflow.StatusApproved, "")
	require.ErrorIs(t, err, ErrPartialFailure)
	require.Equal(t, 1, result.FailedCount)
	require.Equal(t, cashflow.StatusPending, ledger.entries["a"].Status)
	require.Equal(t, cashflow.StatusApproved, ledger.entries["b"].Status)
	require.ErrorIs(t, result.Items[0].Err, cashflow.ErrMissingCashbox)
}

func TestTransitionUnknownIDFailsItemOnly(t *testing.T) {
	ledger := newMemoryLedger(entry("a", cashflow.StatusPending, cashflow.OriginNone, ""))
	coord := NewCoordinator(ledger, &recordingCompensator{}, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"ghost", "a"}, cashflow.StatusRejected, "")
	require.ErrorIs(t, err, ErrPartialFailure)
	require.Equal(t, 1, result.FailedCount)
	require.Equal(t, cashflow.StatusRejected, ledger.entries["a"].Status)
	for _, item := range result.Items {
		if item.ID == "ghost" {
			require.ErrorIs(t, item.Err, shared.ErrNotFound)
		}
	}
}

func TestTransitionRejectsInvalidTarget(t *testing.T) {
	coord := NewCoordinator(newMemoryLedger(), &recordingCompensator{}, nil, nil)
	_, err := coord.Transition(context.Background(), []string{"a"}, cashflow.StatusPending, "")
	require.ErrorIs(t, err, cashflow.ErrInvalidTransition)
}

func TestTransitionDeduplicatesIDs(t *testing.T) {
	ledger := newMemoryLedger(entry("a", cashflow.StatusPending, cashflow.OriginSale, "S1"))
	comp := &recordingCompensator{}
	coord := NewCoordinator(ledger, comp, nil, nil)

	result, err := coord.Transition(context.Background(), []string{"a", "a", ""}, cashflow.StatusRejected, "")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, []string{"Sale/S1"}, comp.calls)
}
