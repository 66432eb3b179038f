package store

type WebhookDelivery struct {
	ID        string `db:"id"`
	EventType string `db:"event_type"`
	URL       string `db:"url"`
	Secret    string `db:"secret"`
	Payload   []byte `db:"payload"`
	Status    string `db:"status"`
	Attempts  int    `db:"attempts"`
}

const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)
