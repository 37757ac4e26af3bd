package orders

import (
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/inventory"
	"github.com/shopspring/decimal"
)

// Line is an order item with the catalog price captured at creation.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type Delivery struct {
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type Order struct {
	ID            string          `json:"id"`
	ExternalID    string          `json:"external_id,omitempty"`
	BusinessID    string          `json:"business_id"`
	UserID        string          `json:"user_id"`
	TokenID       string          `json:"token_id"`
	Lines         []Line          `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Delivery      Delivery        `json:"delivery"`

	CancellationReason string `json:"cancellation_reason,omitempty"`
	CancelledBy        string `json:"cancelled_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	PreparingAt *time.Time `json:"preparing_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// Items returns the stock movement the order's lines represent.
func (o Order) Items() []inventory.Item {
	out := make([]inventory.Item, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, inventory.Item{ProductID: l.ProductID, Qty: l.Qty})
	}
	return out
}

// Stamp sets the <status>At field for s.
func (o *Order) Stamp(s Status, at time.Time) {
	t := at
	switch s {
	case StatusConfirmed:
		o.ConfirmedAt = &t
	case StatusPreparing:
		o.PreparingAt = &t
	case StatusReady:
		o.ReadyAt = &t
	case StatusDelivered:
		o.DeliveredAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	}
	o.UpdatedAt = at
}

// Transition is a compare-and-swap on the order status.
type Transition struct {
	OrderID string
	From    Status
	To      Status
	At      time.Time
	Reason  string // cancellations only
	By      string
}
