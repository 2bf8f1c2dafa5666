package model

// TableStatus is the occupancy state of a dining table.
//
// Transitions: available <-> occupied when an order is opened or closed,
// available <-> reserved.  A reset forces any state back to available.
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
)

// Valid reports whether s is one of the known statuses.
func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableOccupied, TableReserved:
		return true
	}
	return false
}

// Table represents one dining table of the floor plan.  The whole
// collection is persisted as a single JSON array.  An available table
// never carries guests or an order; CleanupOrphanedTableData repairs
// records that break this.
//
// Fields:
//
//	ID      – table number, stable across resets.
//	Name    – display label (e.g. "Table 4").
//	Section – floor area (Salle, Terrasse, Bar).  Empty in data written by
//	          very old versions; backfilled from the default layout.
//	Status  – occupancy state.
//	Seats   – seat count.
//	Guests  – number of seated guests (nil when nobody is seated).
//	Order   – the open order (nil when none).
type Table struct {
	ID      int         `json:"id"`
	Name    string      `json:"name"`
	Section string      `json:"section,omitempty"`
	Status  TableStatus `json:"status"`
	Seats   int         `json:"seats"`
	Guests  *int        `json:"guests,omitempty"`
	Order   *Order      `json:"order,omitempty"`
}

// HasOrphanedData reports whether t carries state it should not: an
// available table with guests or an order, or an order with no items.
func (t Table) HasOrphanedData() bool {
	if t.Status == TableAvailable && (t.Guests != nil || t.Order != nil) {
		return true
	}
	return t.Order != nil && len(t.Order.Items) == 0
}

// Reset returns t as an available table with no guests and no order.  Name,
// section and seats are kept; empty ones fall back to def.
func (t Table) Reset(def Table) Table {
	out := Table{
		ID:      t.ID,
		Name:    t.Name,
		Section: t.Section,
		Status:  TableAvailable,
		Seats:   t.Seats,
	}
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.Section == "" {
		out.Section = def.Section
	}
	if out.Seats <= 0 {
		out.Seats = def.Seats
	}
	return out
}
