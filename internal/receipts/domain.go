package receipts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the receipt state of a product while it sits in the inbound
// approval flow. pending->accepted and pending->rejected are the only ways
// out of pending; accepted->history is a separate, one-directional archive
// step taken when the accepted stock is shipped onward.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusHistory  Status = "history"
)

// UnmarshalJSON normalises case and whitespace on reads.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.decode(raw)
}

// ParseStatus validates a wire-level status string.
func ParseStatus(v string) (Status, error) {
	var s Status
	if err := s.decode(v); err != nil {
		return "", err
	}
	return s, nil
}

func (s *Status) decode(v string) error {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending":
		*s = StatusPending
	case "accepted":
		*s = StatusAccepted
	case "rejected":
		*s = StatusRejected
	case "history":
		*s = StatusHistory
	default:
		return fmt.Errorf("receipts: unknown status %q", v)
	}
	return nil
}

// Receipt is a product record carrying an inventory-receipt status.
type Receipt struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Quantity      int64           `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SupplierRef   string          `json:"supplier_ref"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ExpenseAmount is the monetary effect of accepting the receipt, computed at
// accept time and rounded to two decimals.
func (r Receipt) ExpenseAmount() decimal.Decimal {
	return r.PurchasePrice.Mul(decimal.NewFromInt(r.Quantity)).Round(2)
}

// Filter narrows product listings.
type Filter struct {
	Status  Status
	Page    int
	PerPage int
}

var (
	// ErrInvalidTransition occurs when a receipt is not in the expected
	// source state for the requested transition.
	ErrInvalidTransition = errors.New("receipts: invalid status transition")
	// ErrPostAcceptEffect occurs when the receipt was persisted as accepted
	// but the correlated expense entry could not be created. The receipt is
	// not rolled back; the operator retries the entry creation explicitly.
	ErrPostAcceptEffect = errors.New("receipts: accepted but expense entry not created")
)
