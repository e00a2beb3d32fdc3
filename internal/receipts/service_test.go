package receipts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/shared"
)

type memoryLedger struct {
	products     map[string]Receipt
	created      []cashflow.Entry
	createErr    error
	nextEntrySeq int
}

func newMemoryLedger(products ...Receipt) *memoryLedger {
	m := &memoryLedger{products: make(map[string]Receipt)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memoryLedger) GetProduct(ctx context.Context, id string) (Receipt, error) {
	p, ok := m.products[id]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: product %s", shared.ErrNotFound, id)
	}
	return p, nil
}

func (m *memoryLedger) SetProductStatus(ctx context.Context, id string, status Status) (Receipt, error) {
	p, ok := m.products[id]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: product %s", shared.ErrNotFound, id)
	}
	p.Status = status
	m.products[id] = p
	return p, nil
}

func (m *memoryLedger) ListProducts(ctx context.Context, filter Filter) ([]Receipt, error) {
	var out []Receipt
	for _, p := range m.products {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryLedger) CreateCashFlow(ctx context.Context, entry cashflow.Entry) (cashflow.Entry, error) {
	if m.createErr != nil {
		return cashflow.Entry{}, m.createErr
	}
	m.nextEntrySeq++
	entry.ID = fmt.Sprintf("cf-%d", m.nextEntrySeq)
	m.created = append(m.created, entry)
	return entry, nil
}

type recordingAlerts struct {
	postAcceptFailures int
}

func (a *recordingAlerts) PostAcceptFailed(ctx context.Context, receipt Receipt, cashboxRef string, cause error) {
	a.postAcceptFailures++
}

func pendingReceipt(id string, qty int64, price string) Receipt {
	return Receipt{
		ID:            id,
		Name:          "Item " + id,
		Quantity:      qty,
		PurchasePrice: decimal.RequireFromString(price),
		SupplierRef:   "sup-1",
		Status:        StatusPending,
	}
}

func TestAcceptCreatesRoundedExpenseEntry(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-1", 10, "12.345"))
	svc := NewService(ledger, nil, nil, nil, nil, nil)

	receipt, expense, err := svc.Accept(context.Background(), "r-1", "box-1", 7)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, receipt.Status)
	require.NotNil(t, expense)
	require.Equal(t, "123.45", expense.Amount.String())
	require.Equal(t, cashflow.KindExpense, expense.Kind)
	require.Equal(t, cashflow.StatusPending, expense.Status)
	require.Equal(t, cashflow.OriginWarehouse, expense.OriginTag)
	require.Equal(t, "r-1", expense.OriginRef)
	require.Equal(t, "box-1", expense.CashboxRef)
	require.Len(t, ledger.created, 1)
}

func TestAcceptRequiresCashboxForPositiveAmount(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-2", 5, "2.00"))
	svc := NewService(ledger, nil, nil, nil, nil, nil)

	_, _, err := svc.Accept(context.Background(), "r-2", "", 7)
	require.ErrorIs(t, err, cashflow.ErrMissingCashbox)
	require.Equal(t, StatusPending, ledger.products["r-2"].Status)
}

func TestAcceptZeroAmountSkipsExpense(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-3", 4, "0"))
	svc := NewService(ledger, nil, nil, nil, nil, nil)

	receipt, expense, err := svc.Accept(context.Background(), "r-3", "", 7)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, receipt.Status)
	require.Nil(t, expense)
	require.Empty(t, ledger.created)
}

func TestAcceptOnlyFromPending(t *testing.T) {
	accepted := pendingReceipt("r-4", 1, "1.00")
	accepted.Status = StatusAccepted
	ledger := newMemoryLedger(accepted)
	svc := NewService(ledger, nil, nil, nil, nil, nil)

	_, _, err := svc.Accept(context.Background(), "r-4", "box-1", 7)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAcceptSurvivesExpenseFailure(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-5", 3, "10.00"))
	ledger.createErr = errors.New("ledger write refused")
	alerts := &recordingAlerts{}
	svc := NewService(ledger, nil, nil, alerts, nil, nil)

	receipt, expense, err := svc.Accept(context.Background(), "r-5", "box-1", 7)
	require.ErrorIs(t, err, ErrPostAcceptEffect)
	require.Nil(t, expense)
	require.Equal(t, StatusAccepted, receipt.Status)
	require.Equal(t, StatusAccepted, ledger.products["r-5"].Status)
	require.Equal(t, 1, alerts.postAcceptFailures)
}

func TestRejectReceipt(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-6", 2, "5.00"))
	svc := NewService(ledger, nil, nil, nil, nil, nil)

	receipt, err := svc.Reject(context.Background(), "r-6", 7)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, receipt.Status)
	require.Empty(t, ledger.created)

	_, err = svc.Reject(context.Background(), "r-6", 7)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestArchiveOnlyFromAccepted(t *testing.T) {
	pending := pendingReceipt("r-7", 2, "5.00")
	accepted := pendingReceipt("r-8", 2, "5.00")
	accepted.Status = StatusAccepted
	ledger := newMemoryLedger(pending, accepted)
	svc := NewService(ledger, nil, nil, nil, nil, nil)

	_, err := svc.Archive(context.Background(), "r-7", 7)
	require.ErrorIs(t, err, ErrInvalidTransition)

	receipt, err := svc.Archive(context.Background(), "r-8", 7)
	require.NoError(t, err)
	require.Equal(t, StatusHistory, receipt.Status)
}

func TestRetryExpenseEntry(t *testing.T) {
	accepted := pendingReceipt("r-9", 6, "7.50")
	accepted.Status = StatusAccepted
	ledger := newMemoryLedger(accepted)
	svc := NewService(ledger, nil, nil, nil, nil, nil)

	_, err := svc.RetryExpenseEntry(context.Background(), "r-9", "", 7)
	require.ErrorIs(t, err, cashflow.ErrMissingCashbox)

	entry, err := svc.RetryExpenseEntry(context.Background(), "r-9", "box-2", 7)
	require.NoError(t, err)
	require.Equal(t, "45", entry.Amount.String())
	require.Equal(t, "r-9", entry.OriginRef)
}

func TestRetryExpenseEntryRequiresAccepted(t *testing.T) {
	ledger := newMemoryLedger(pendingReceipt("r-10", 1, "1.00"))
	svc := NewService(ledger, nil, nil, nil, nil, nil)

	_, err := svc.RetryExpenseEntry(context.Background(), "r-10", "box-1", 7)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExpenseAmountRounding(t *testing.T) {
	cases := []struct {
		qty   int64
		price string
		want  string
	}{
		{10, "12.345", "123.45"},
		{3, "0.333", "1"},
		{7, "1.115", "7.81"},
		{1, "99.999", "100"},
	}
	for _, tc := range cases {
		r := pendingReceipt("x", tc.qty, tc.price)
		require.Equal(t, tc.want, r.ExpenseAmount().String(), "%d x %s", tc.qty, tc.price)
	}
}
