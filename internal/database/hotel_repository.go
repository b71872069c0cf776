package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/staybook/hotel-booking-backend/internal/models"
)

const hotelColumns = `id, name, location, image, description, price, rating, amenities,
	stripe_product_id, stripe_price_id`

// HotelRepository reads the hotel catalog
type HotelRepository struct {
	db *sqlx.DB
}

// NewHotelRepository creates a new HotelRepository
func NewHotelRepository(db *sqlx.DB) *HotelRepository {
	return &HotelRepository{db: db}
}

// GetHotelByID retrieves a hotel, nil if absent
func (r *HotelRepository) GetHotelByID(ctx context.Context, id uuid.UUID) (*models.Hotel, error) {
	var hotel models.Hotel
	err := r.db.GetContext(ctx, &hotel, `SELECT `+hotelColumns+` FROM hotels WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hotel: %w", err)
	}
	return &hotel, nil
}

// ListWithoutStripePrice returns hotels that have no provider price yet
func (r *HotelRepository) ListWithoutStripePrice(ctx context.Context) ([]*models.Hotel, error) {
	query := `SELECT ` + hotelColumns + ` FROM hotels
		WHERE stripe_price_id IS NULL OR stripe_price_id = ''
		ORDER BY name`

	hotels := []*models.Hotel{}
	if err := r.db.SelectContext(ctx, &hotels, query); err != nil {
		return nil, fmt.Errorf("failed to list hotels without price: %w", err)
	}
	return hotels, nil
}

// SetStripeIDs stores the provider product and price ids of a hotel
func (r *HotelRepository) SetStripeIDs(ctx context.Context, id uuid.UUID, productID, priceID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE hotels SET stripe_product_id = $2, stripe_price_id = $3 WHERE id = $1`,
		id, productID, priceID)
	if err != nil {
		return fmt.Errorf("failed to store stripe ids: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("hotel %s not found", id)
	}
	return nil
}
