package events

const (
	TopicOrderCreated        = "order.created"
	TopicOrderStatusChanged  = "order.status.changed"
	TopicStockAdjusted       = "inventory.stock.adjusted"
	TopicPaymentInitiated    = "payment.initiated"
	TopicPaymentReconciled   = "payment.reconciled"
	TopicPaymentRefunded     = "payment.refunded"
	TopicPaymentNotification = "payment.notification"
)

// Topics lists every topic a publisher may be asked to write to.
var Topics = []string{
	TopicOrderCreated,
	TopicOrderStatusChanged,
	TopicStockAdjusted,
	TopicPaymentInitiated,
	TopicPaymentReconciled,
	TopicPaymentRefunded,
	TopicPaymentNotification,
}

// PartitionKey keeps every event of one order (or one tracking id) in order.
func PartitionKey(correlationID string) []byte { return []byte(correlationID) }
