package cashflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes money coming in from money going out.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Status is the approval state of a cash-flow entry. Legacy deployments of
// the ledger store encode it as a boolean (false=pending, true=approved);
// reads accept both encodings, writes always emit the canonical strings.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// UnmarshalJSON normalises the canonical string enum as well as the legacy
// boolean encoding (bare booleans and the strings "false"/"true").
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		if v {
			*s = StatusApproved
		} else {
			*s = StatusPending
		}
		return nil
	case string:
		return s.decode(v)
	default:
		return fmt.Errorf("cashflow: unsupported status encoding %T", raw)
	}
}

// ParseStatus validates a wire-level status, legacy encodings included.
func ParseStatus(v string) (Status, error) {
	var s Status
	if err := s.decode(v); err != nil {
		return "", err
	}
	return s, nil
}

func (s *Status) decode(v string) error {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending", "false":
		*s = StatusPending
	case "approved", "true":
		*s = StatusApproved
	case "rejected":
		*s = StatusRejected
	default:
		return fmt.Errorf("cashflow: unknown status %q", v)
	}
	return nil
}

// OriginTag identifies the business subsystem that created an entry. The set
// is closed: decoding rejects unknown tags so a misspelled tag can never
// silently fall through to a no-op compensation.
type OriginTag string

const (
	// OriginNone marks manually entered flows with no compensation.
	OriginNone           OriginTag = ""
	OriginWarehouse      OriginTag = "Warehouse"
	OriginSale           OriginTag = "Sale"
	OriginProductionSale OriginTag = "ProductionSale"
	OriginDebtPayment    OriginTag = "DebtPayment"
	OriginRawMaterial    OriginTag = "RawMaterial"
)

// ParseOriginTag validates a wire-level origin tag.
func ParseOriginTag(v string) (OriginTag, error) {
	switch tag := OriginTag(v); tag {
	case OriginNone, OriginWarehouse, OriginSale, OriginProductionSale, OriginDebtPayment, OriginRawMaterial:
		return tag, nil
	default:
		return OriginNone, fmt.Errorf("cashflow: unknown origin tag %q", v)
	}
}

// UnmarshalJSON enforces the closed tag set on decode.
func (t *OriginTag) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tag, err := ParseOriginTag(raw)
	if err != nil {
		return err
	}
	*t = tag
	return nil
}

// Entry is one cash-flow entry owned by the ledger store.
type Entry struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Kind       Kind            `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	CashboxRef string          `json:"cashbox_ref"`
	Status     Status          `json:"status"`
	OriginTag  OriginTag       `json:"origin_tag"`
	OriginRef  string          `json:"origin_ref"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StatusUpdate describes one requested transition against the ledger store.
// CashboxRef is set only when approval has to attach a cash register to an
// entry that lacks one.
type StatusUpdate struct {
	ID         string `json:"id"`
	Status     Status `json:"status"`
	CashboxRef string `json:"cashbox_ref,omitempty"`
}

// Filter narrows cash-flow listings.
type Filter struct {
	Status     Status
	CashboxRef string
	Page       int
	PerPage    int
}

var (
	// ErrInvalidTransition occurs when an entry is not in the expected
	// source state for the requested transition.
	ErrInvalidTransition = errors.New("cashflow: invalid status transition")
	// ErrMissingCashbox occurs when approval is attempted with no cash
	// register context.
	ErrMissingCashbox = errors.New("cashflow: cashbox required for approval")
)
