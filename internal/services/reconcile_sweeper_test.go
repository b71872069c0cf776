package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/staybook/hotel-booking-backend/internal/config"
	"github.com/staybook/hotel-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweeperFixture struct {
	sweeper *ReconcileSweeper
	locker  *fakeLocker
	*bookingFixture
}

func setupSweeper(t *testing.T) *sweeperFixture {
	t.Helper()
	f := setupBookingService(t)
	locker := &fakeLocker{}
	reconciler := NewWebhookReconciler(f.store, f.audits, f.events, quietLogger())
	sweeper := NewReconcileSweeper(f.store, f.gateway, reconciler, locker, config.ReconcileConfig{
		Enabled:  true,
		Schedule: "0 */5 * * * *",
		MinAge:   10 * time.Minute,
		Batch:    50,
	}, quietLogger())
	return &sweeperFixture{sweeper: sweeper, locker: locker, bookingFixture: f}
}

// stale creates a PENDING booking with a provider session last touched an hour ago
func (f *sweeperFixture) stale(t *testing.T) (*models.Booking, string) {
	t.Helper()
	result, err := f.service.Create(context.Background(), f.userID, f.request(), "")
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.bookings[result.Booking.ID].UpdatedAt = time.Now().Add(-time.Hour)
	f.store.mu.Unlock()

	return result.Booking, result.Payment.SessionID
}

func TestSweeper_ReconcilesPaidSessions(t *testing.T) {
	f := setupSweeper(t)
	paid, paidSession := f.stale(t)
	unpaid, _ := f.stale(t)
	f.gateway.markPaid(paidSession)

	fresh, err := f.service.Create(context.Background(), f.userID, f.request(), "")
	require.NoError(t, err)

	summary := f.sweeper.Sweep(context.Background())
	assert.False(t, summary.Skipped)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Reconciled)
	assert.Equal(t, 1, summary.Unpaid)
	assert.Zero(t, summary.Errors)

	assert.Equal(t, models.BookingStatusPaid, f.store.get(paid.ID).Status)
	assert.Equal(t, models.PaymentStatusPaid, f.store.get(paid.ID).PaymentStatus)
	assert.Equal(t, models.BookingStatusPending, f.store.get(unpaid.ID).Status)
	assert.Equal(t, models.BookingStatusPending, f.store.get(fresh.Booking.ID).Status)

	audits := f.audits.ofType(models.PaymentEventSweeperReconciled)
	require.Len(t, audits, 1)
	assert.Equal(t, models.PaymentSourceSweeper, audits[0].EventSource)
	assert.Equal(t, 1, f.locker.released)
}

func TestSweeper_SecondRunIsNoop(t *testing.T) {
	f := setupSweeper(t)
	_, session := f.stale(t)
	f.gateway.markPaid(session)

	first := f.sweeper.Sweep(context.Background())
	assert.Equal(t, 1, first.Reconciled)

	second := f.sweeper.Sweep(context.Background())
	assert.Zero(t, second.Checked)
	assert.Zero(t, second.Reconciled)
}

func TestSweeper_SkipsWhenLockHeld(t *testing.T) {
	f := setupSweeper(t)
	f.locker.held = true

	summary := f.sweeper.Sweep(context.Background())
	assert.True(t, summary.Skipped)
	assert.Zero(t, f.locker.released)
}

func TestSweeper_LockError(t *testing.T) {
	f := setupSweeper(t)
	f.locker.err = errors.New("redis: connection refused")

	summary := f.sweeper.Sweep(context.Background())
	assert.Equal(t, "redis: connection refused", summary.Error)
}

func TestSweeper_ProviderErrorsAreCounted(t *testing.T) {
	f := setupSweeper(t)
	booking, _ := f.stale(t)
	f.gateway.getErr = errors.New("connection reset")

	summary := f.sweeper.Sweep(context.Background())
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, models.BookingStatusPending, f.store.get(booking.ID).Status)
}

func TestSweeper_Status(t *testing.T) {
	f := setupSweeper(t)

	status := f.sweeper.Status()
	assert.False(t, status.Enabled)
	assert.Nil(t, status.LastSweep)

	require.NoError(t, f.sweeper.Start())
	defer f.sweeper.Stop()

	f.sweeper.Sweep(context.Background())
	status = f.sweeper.Status()
	assert.True(t, status.Enabled)
	assert.Equal(t, "0 */5 * * * *", status.Schedule)
	require.NotNil(t, status.NextRun)
	assert.True(t, status.NextRun.After(time.Now()))
	require.NotNil(t, status.LastSweep)
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	f := setupSweeper(t)
	f.sweeper.config.Schedule = "every now and then"

	err := f.sweeper.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to schedule reconcile sweep")
}
