package model

import (
	"math"
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderCompleted OrderStatus = "completed"
)

// OrderItem is one line of an order.  Offered items are given away by the
// house and never count towards a total.
//
// Fields:
//
//	ID       – menu item id (catalog ids, or custom ids above CustomIDBase).
//	Name     – label printed on the bill.
//	Price    – unit price.
//	Quantity – number of units.
//	Notes    – free-text kitchen notes.
//	Offered  – true when the item is on the house.
type OrderItem struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Notes    string  `json:"notes,omitempty"`
	Offered  bool    `json:"offered,omitempty"`
}

// LineTotal is price times quantity.
func (i OrderItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// Order is the open ticket of a table.  It is owned by its Table and is
// dropped when the table is reset.
type Order struct {
	ID        string      `json:"id"`
	Items     []OrderItem `json:"items"`
	Guests    int         `json:"guests"`
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Total     float64     `json:"total"`
}

// ComputeTotal sums the non-offered lines, rounded to cents.
func (o Order) ComputeTotal() float64 {
	return ItemsTotal(o.Items)
}

// OfferedTotal sums the offered lines, rounded to cents.
func (o Order) OfferedTotal() float64 {
	var sum float64
	for _, it := range o.Items {
		if it.Offered {
			sum += it.LineTotal()
		}
	}
	return roundCents(sum)
}

// ItemsTotal sums the non-offered lines of items, rounded to cents.
func ItemsTotal(items []OrderItem) float64 {
	var sum float64
	for _, it := range items {
		if !it.Offered {
			sum += it.LineTotal()
		}
	}
	return roundCents(sum)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
