package model

import "time"

// Settings holds the restaurant-wide preferences.  The manager PIN is
// stored only as a bcrypt hash and is never serialized back to clients by
// the HTTP layer.
type Settings struct {
	RestaurantName string    `json:"restaurantName"`
	Currency       string    `json:"currency"`
	TaxRate        float64   `json:"taxRate"`
	ManagerPINHash string    `json:"managerPinHash,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}

// DefaultSettings is used until settings are first saved.
func DefaultSettings() Settings {
	return Settings{
		RestaurantName: "Restaurant",
		Currency:       "EUR",
		TaxRate:        0.10,
	}
}
