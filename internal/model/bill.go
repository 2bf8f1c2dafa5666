package model

import "time"

// BillStatus records how a bill was settled.
type BillStatus string

const (
	BillPending BillStatus = "pending"
	BillPaid    BillStatus = "paid"
	BillSplit   BillStatus = "split"
)

// Payment methods accepted at the till.
const (
	PaymentCash  = "cash"
	PaymentCard  = "card"
	PaymentCheck = "check"
)

// Payment types.  A full payment settles the whole order, a split payment
// divides it between guests and an items payment settles selected lines.
const (
	PaymentTypeFull  = "full"
	PaymentTypeSplit = "split"
	PaymentTypeItems = "items"
)

// Bill is an immutable record of a completed payment.  Bills are only ever
// added, deleted or moved to the archive; never edited.
//
// Fields:
//
//	ID            – unique identifier (UUID).
//	TableNumber   – id of the table that paid.
//	TableName     – table label at the time of payment.
//	Section       – table section at the time of payment.
//	Amount        – amount paid, offered items excluded.
//	Items         – the order lines.
//	Status        – settlement status.
//	Timestamp     – when the payment completed.
//	PaymentMethod – cash, card or check.
//	PaymentType   – full, split or items.
//	PaidItems     – lines settled by an items payment.
//	OfferedAmount – value of the offered lines.
type Bill struct {
	ID            string      `json:"id"`
	TableNumber   int         `json:"tableNumber"`
	TableName     string      `json:"tableName,omitempty"`
	Section       string      `json:"section,omitempty"`
	Amount        float64     `json:"amount"`
	Items         []OrderItem `json:"items"`
	Status        BillStatus  `json:"status"`
	Timestamp     time.Time   `json:"timestamp"`
	PaymentMethod string      `json:"paymentMethod,omitempty"`
	PaymentType   string      `json:"paymentType,omitempty"`
	PaidItems     []OrderItem `json:"paidItems,omitempty"`
	OfferedAmount float64     `json:"offeredAmount,omitempty"`
}
