package orders

const (
	TopicCheckoutCreated = "order.checkout.created"
	TopicOrderPaid       = "order.paid"
	TopicPaymentFailed   = "order.payment.failed"
	TopicOrderCanceled   = "order.canceled"
)

// Partition key = order_id so every event of one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
