package models

import (
	"database/sql/driver"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringArray is a custom type for handling TEXT[] arrays in PostgreSQL
type StringArray []string

// Value implements the driver.Valuer interface
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Array([]string(a)).Value()
}

// Scan implements the sql.Scanner interface
func (a *StringArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	slice := (*[]string)(a)
	return pq.Array(slice).Scan(src)
}

// Hotel is a catalog entry. The booking core only reads it.
type Hotel struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	Name            string      `json:"name" db:"name"`
	Location        string      `json:"location" db:"location"`
	Image           string      `json:"image" db:"image"`
	Description     string      `json:"description" db:"description"`
	Price           float64     `json:"price" db:"price"` // per night
	Rating          *float64    `json:"rating,omitempty" db:"rating"`
	Amenities       StringArray `json:"amenities" db:"amenities"`
	StripeProductID *string     `json:"stripeProductId,omitempty" db:"stripe_product_id"`
	StripePriceID   *string     `json:"stripePriceId,omitempty" db:"stripe_price_id"`
}

// PriceCents converts the nightly price to the smallest currency unit
func (h *Hotel) PriceCents() int64 {
	return int64(h.Price*100 + 0.5)
}

// HasStripePrice reports whether a provider price was provisioned
func (h *Hotel) HasStripePrice() bool {
	return h.StripePriceID != nil && *h.StripePriceID != ""
}
