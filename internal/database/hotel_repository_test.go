package database

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hotelColumnNames = []string{
	"id", "name", "location", "image", "description", "price", "rating", "amenities",
	"stripe_product_id", "stripe_price_id",
}

func TestHotelRepository_GetHotelByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHotelRepository(db)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT (.+) FROM hotels WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(hotelColumnNames).AddRow(
				id.String(), "Harbor View", "Galle", "https://img.example.com/h.jpg", "Sea-facing rooms",
				180.5, 4.6, []byte(`{"wifi","pool"}`), "prod_1", "price_1",
			))

		hotel, err := repo.GetHotelByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, hotel)
		assert.Equal(t, "Harbor View", hotel.Name)
		assert.Equal(t, models.StringArray{"wifi", "pool"}, hotel.Amenities)
		assert.True(t, hotel.HasStripePrice())
		assert.Equal(t, int64(18050), hotel.PriceCents())
	})

	t.Run("Missing", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT (.+) FROM hotels WHERE id = \$1`).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		hotel, err := repo.GetHotelByID(ctx, id)
		assert.NoError(t, err)
		assert.Nil(t, hotel)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHotelRepository_SetStripeIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHotelRepository(db)
	id := uuid.New()

	mock.ExpectExec(`UPDATE hotels SET stripe_product_id = \$2, stripe_price_id = \$3 WHERE id = \$1`).
		WithArgs(id, "prod_9", "price_9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE hotels SET stripe_product_id`).
		WithArgs(id, "prod_9", "price_9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetStripeIDs(context.Background(), id, "prod_9", "price_9"))

	err := repo.SetStripeIDs(context.Background(), id, "prod_9", "price_9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentAuditRepository_Log(t *testing.T) {
	db, mock := newMockDB(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	repo := NewPaymentAuditRepository(db, logger)

	t.Run("Nil entry", func(t *testing.T) {
		assert.Error(t, repo.Log(context.Background(), nil))
	})

	t.Run("Success", func(t *testing.T) {
		bookingID := uuid.New()
		audit := models.NewPaymentAudit(models.PaymentEventBookingPaid, models.PaymentSourceStripeWebhook).
			SetBooking(bookingID).
			SetSession("cs_test_1").
			SetProviderEvent("evt_1").
			SetPaymentStatus("paid")

		mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Log(context.Background(), audit))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentAuditRepository_ListByBooking(t *testing.T) {
	db, mock := newMockDB(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	repo := NewPaymentAuditRepository(db, logger)

	bookingID := uuid.New()
	columns := []string{
		"id", "booking_id", "payment_session_id", "provider_event_id",
		"event_type", "event_source", "payment_status",
		"error_message", "error_code", "is_duplicate",
		"ip_address", "user_agent", "client_device", "created_at",
	}
	now := time.Now()
	mock.ExpectQuery(`SELECT (.+) FROM payment_audits\s+WHERE booking_id = \$1\s+ORDER BY created_at ASC`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), bookingID.String(), "cs_test_1", nil,
				"checkout_session_created", "backend", nil,
				nil, nil, false,
				nil, nil, nil, now).
			AddRow(uuid.NewString(), bookingID.String(), "cs_test_1", "evt_1",
				"booking_paid", "stripe_webhook", "PAID",
				nil, nil, false,
				"54.187.174.169", "Stripe/1.0", "Unknown on Unknown (desktop)", now.Add(time.Second)))

	audits, err := repo.ListByBooking(context.Background(), bookingID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, models.PaymentEventSessionCreated, audits[0].EventType)
	assert.Nil(t, audits[0].ProviderEventID)
	assert.Equal(t, models.PaymentSourceStripeWebhook, audits[1].EventSource)
	require.NotNil(t, audits[1].ProviderEventID)
	assert.Equal(t, "evt_1", *audits[1].ProviderEventID)

	mock.ExpectQuery(`SELECT (.+) FROM payment_audits`).
		WithArgs(bookingID).
		WillReturnError(sql.ErrConnDone)
	_, err = repo.ListByBooking(context.Background(), bookingID)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}
