package model

import (
	"bytes"
	"encoding/json"
	"math"
)

// CustomIDBase separates user-defined menu items from the built-in
// catalog: every custom item id is greater than it.
const CustomIDBase = 10000

// IsCustomID reports whether id belongs to a user-defined menu item.
func IsCustomID(id int) bool { return id > CustomIDBase }

// MenuType classifies a menu item for the kitchen or the bar.
type MenuType string

const (
	MenuFood  MenuType = "resto"
	MenuDrink MenuType = "boisson"
)

// MenuItemAvailability overrides the availability of one catalog item.
// The collection is sparse: an item with no record is available.
type MenuItemAvailability struct {
	ID        int     `json:"id"`
	Available bool    `json:"available"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}

// Valid reports whether the record can be stored.
func (a MenuItemAvailability) Valid() bool {
	return a.ID > 0 && !math.IsNaN(a.Price) && !math.IsInf(a.Price, 0) && a.Price >= 0
}

// ParseAvailability decodes one availability record from raw JSON,
// accepting it only when id and price are numbers, available is a boolean
// and name is a string.  Extra fields are ignored.
func ParseAvailability(raw json.RawMessage) (MenuItemAvailability, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return MenuItemAvailability{}, false
	}
	if !isNumber(fields["id"]) || !isNumber(fields["price"]) ||
		!isBool(fields["available"]) || !isString(fields["name"]) {
		return MenuItemAvailability{}, false
	}
	var a MenuItemAvailability
	if err := json.Unmarshal(raw, &a); err != nil {
		return MenuItemAvailability{}, false
	}
	if !a.Valid() {
		return MenuItemAvailability{}, false
	}
	return a, true
}

func isNumber(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && (v[0] == '-' || (v[0] >= '0' && v[0] <= '9'))
}

func isBool(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return bytes.Equal(v, []byte("true")) || bytes.Equal(v, []byte("false"))
}

func isString(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '"'
}

// CustomMenuItem is a menu item created on the device.
type CustomMenuItem struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Category  string   `json:"category"`
	Type      MenuType `json:"type"`
	Available bool     `json:"available"`
}
