package events

type LinePayload struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID       string        `json:"order_id"`
	ExternalID    string        `json:"external_id,omitempty"`
	BusinessID    string        `json:"business_id"`
	UserID        string        `json:"user_id"`
	PaymentMethod string        `json:"payment_method"`
	Lines         []LinePayload `json:"lines"`
	Total         string        `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason,omitempty"`
	By      string `json:"by,omitempty"`
}

type StockAdjustedPayload struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Stock     int    `json:"stock"`
	Reason    string `json:"reason,omitempty"`
}

type PaymentInitiatedPayload struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	TrackingID    string `json:"tracking_id"`
	Amount        string `json:"amount"`
}

type PaymentReconciledPayload struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	TrackingID    string `json:"tracking_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	OrderStatus   string `json:"order_status"`
	Source        string `json:"source"`
}

type PaymentRefundedPayload struct {
	OrderID        string `json:"order_id"`
	TransactionID  string `json:"transaction_id"`
	RefundID       string `json:"refund_id"`
	Amount         string `json:"amount"`
	RefundedAmount string `json:"refunded_amount"`
	Status         string `json:"status"`
}

// PaymentNotificationPayload is a gateway push queued for the reconciler.
type PaymentNotificationPayload struct {
	TrackingID        string `json:"tracking_id"`
	MerchantReference string `json:"merchant_reference,omitempty"`
	NotificationType  string `json:"notification_type,omitempty"`
}
