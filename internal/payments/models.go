package payments

import (
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

type Type string

const (
	TypePurchase Type = "purchase"
	TypeRefund   Type = "refund"
	TypeTopup    Type = "topup"
)

// Transaction is one monetary movement. Amount is positive for charges and
// negative for refunds.
type Transaction struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	BusinessID       string          `json:"business_id"`
	UserID           string          `json:"user_id"`
	Type             Type            `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           Status          `json:"status"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount"`
	TrackingID       string          `json:"tracking_id,omitempty"`
	RedirectURL      string          `json:"redirect_url,omitempty"`
	ParentID         string          `json:"parent_id,omitempty"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
	GatewayMethod    string          `json:"gateway_method,omitempty"`
	Note             string          `json:"note,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Refundable is what can still be given back.
func (t Transaction) Refundable() decimal.Decimal {
	return t.Amount.Sub(t.RefundedAmount)
}

// Settlement is a compare-and-swap on a pending purchase.
type Settlement struct {
	TransactionID    string
	From             Status
	To               Status // paid or failed
	ConfirmationCode string
	GatewayMethod    string
	Note             string
	At               time.Time
}

type SettleResult struct {
	Transaction Transaction
	// OrderStatus is the owning order's status after the settlement and
	// OrderAdvanced whether this settlement moved it pending -> confirmed.
	OrderStatus   orders.Status
	OrderAdvanced bool
}

// RefundEntry applies Amount against Original, expecting its refunded
// accumulator to still be ExpectedRefunded.
type RefundEntry struct {
	OriginalID       string
	ExpectedRefunded decimal.Decimal
	Amount           decimal.Decimal
	Refund           Transaction
	At               time.Time
}

type Source string

const (
	SourceCallback Source = "callback"
	SourceIPN      Source = "ipn"
	SourceSweeper  Source = "sweeper"
	SourceManual   Source = "manual"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePending   Outcome = "pending"
)

type Result struct {
	Transaction Transaction   `json:"transaction"`
	Previous    Status        `json:"previous"`
	Outcome     Outcome       `json:"outcome"`
	OrderStatus orders.Status `json:"order_status,omitempty"`
}
