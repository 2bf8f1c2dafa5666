// Package queue relays domain events to RabbitMQ and consumes them on the
// other side.  Message payloads are defined here.
package queue

import (
	"time"

	"github.com/iliyamo/restaurant-pos/internal/model"
)

// EventsQueue is the durable queue every POS event is published to.  The
// AMQP message type carries the event name.
const EventsQueue = "pos.events"

// TableUpdatedEvent is published whenever a table is written.
type TableUpdatedEvent struct {
	TableID    int    `json:"table_id"`
	OccurredAt string `json:"occurred_at"`
}

// PaymentAddedEvent is published when a bill is recorded.  It carries
// enough for downstream consumers to log or report without reading the
// store.
type PaymentAddedEvent struct {
	BillID        string  `json:"bill_id"`
	TableNumber   int     `json:"table_number"`
	TableName     string  `json:"table_name,omitempty"`
	Section       string  `json:"section,omitempty"`
	Amount        float64 `json:"amount"`
	OfferedAmount float64 `json:"offered_amount,omitempty"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	PaymentType   string  `json:"payment_type,omitempty"`
	ItemCount     int     `json:"item_count"`
	PaidAt        string  `json:"paid_at"`
}

// NewPaymentAddedEvent flattens b into a PaymentAddedEvent.
func NewPaymentAddedEvent(b model.Bill) PaymentAddedEvent {
	n := 0
	for _, it := range b.Items {
		n += it.Quantity
	}
	return PaymentAddedEvent{
		BillID:        b.ID,
		TableNumber:   b.TableNumber,
		TableName:     b.TableName,
		Section:       b.Section,
		Amount:        b.Amount,
		OfferedAmount: b.OfferedAmount,
		PaymentMethod: b.PaymentMethod,
		PaymentType:   b.PaymentType,
		ItemCount:     n,
		PaidAt:        b.Timestamp.UTC().Format(time.RFC3339),
	}
}
