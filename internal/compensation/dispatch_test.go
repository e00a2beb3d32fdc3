package compensation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/shared"
)

type fakeLedger struct {
	products        []string
	sales           []string
	debtPayments    []string
	rawConsumptions []string
	err             error
}

func (f *fakeLedger) DeleteProduct(ctx context.Context, id string) error {
	f.products = append(f.products, id)
	return f.err
}

func (f *fakeLedger) DeleteSale(ctx context.Context, id string) error {
	f.sales = append(f.sales, id)
	return f.err
}

func (f *fakeLedger) ReverseDebtPayment(ctx context.Context, id string) error {
	f.debtPayments = append(f.debtPayments, id)
	return f.err
}

func (f *fakeLedger) DeleteRawConsumption(ctx context.Context, id string) error {
	f.rawConsumptions = append(f.rawConsumptions, id)
	return f.err
}

func TestCompensateRoutesByOriginTag(t *testing.T) {
	ledger := &fakeLedger{}
	d := NewDispatcher(ledger, nil, nil)
	ctx := context.Background()

	require.NoError(t, d.Compensate(ctx, cashflow.OriginWarehouse, "P1"))
	require.NoError(t, d.Compensate(ctx, cashflow.OriginSale, "S1"))
	require.NoError(t, d.Compensate(ctx, cashflow.OriginProductionSale, "S2"))
	require.NoError(t, d.Compensate(ctx, cashflow.OriginDebtPayment, "D1"))
	require.NoError(t, d.Compensate(ctx, cashflow.OriginRawMaterial, "R1"))

	require.Equal(t, []string{"P1"}, ledger.products)
	require.Equal(t, []string{"S1", "S2"}, ledger.sales)
	require.Equal(t, []string{"D1"}, ledger.debtPayments)
	require.Equal(t, []string{"R1"}, ledger.rawConsumptions)
}

func TestCompensateUntaggedIsNoOp(t *testing.T) {
	ledger := &fakeLedger{}
	d := NewDispatcher(ledger, nil, nil)

	require.NoError(t, d.Compensate(context.Background(), cashflow.OriginNone, ""))
	require.NoError(t, d.Compensate(context.Background(), cashflow.OriginNone, "stray-ref"))
	require.Empty(t, ledger.products)
	require.Empty(t, ledger.sales)
}

func TestCompensateTaggedWithoutRefFails(t *testing.T) {
	d := NewDispatcher(&fakeLedger{}, nil, nil)
	err := d.Compensate(context.Background(), cashflow.OriginSale, "")
	require.ErrorIs(t, err, ErrUnresolvedOrigin)
}

func TestCompensateAlreadyGoneIsBenign(t *testing.T) {
	// A second rejection wave may hit an origin that the first wave already
	// removed; the ledger then answers not-found and nothing is wrong.
	ledger := &fakeLedger{err: fmt.Errorf("%w: sale S1", shared.ErrNotFound)}
	d := NewDispatcher(ledger, nil, nil)

	require.NoError(t, d.Compensate(context.Background(), cashflow.OriginSale, "S1"))
	require.Equal(t, []string{"S1"}, ledger.sales)
}

func TestCompensateWrapsFailures(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("boom")}
	d := NewDispatcher(ledger, nil, nil)

	err := d.Compensate(context.Background(), cashflow.OriginWarehouse, "P9")
	require.ErrorIs(t, err, ErrCompensationFailed)
	require.Contains(t, err.Error(), "Warehouse")
	require.Contains(t, err.Error(), "P9")
}

type countingMetrics struct {
	outcomes []bool
}

func (m *countingMetrics) ObserveCompensation(origin string, err error) {
	m.outcomes = append(m.outcomes, err == nil)
}

func TestCompensateReportsMetrics(t *testing.T) {
	metrics := &countingMetrics{}
	d := NewDispatcher(&fakeLedger{}, metrics, nil)
	require.NoError(t, d.Compensate(context.Background(), cashflow.OriginSale, "S1"))

	failing := NewDispatcher(&fakeLedger{err: errors.New("boom")}, metrics, nil)
	require.Error(t, failing.Compensate(context.Background(), cashflow.OriginSale, "S2"))

	require.Equal(t, []bool{true, false}, metrics.outcomes)
}
