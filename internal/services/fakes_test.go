package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/staybook/hotel-booking-backend/internal/cache"
	"github.com/staybook/hotel-booking-backend/internal/models"
)

// memoryBookingStore mirrors the SQL guards of database.BookingRepository
type memoryBookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
	failWith error
}

func newMemoryBookingStore() *memoryBookingStore {
	return &memoryBookingStore{bookings: map[uuid.UUID]*models.Booking{}}
}

func (m *memoryBookingStore) put(b *models.Booking) *models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentStatusUnset
	}
	copied := *b
	m.bookings[b.ID] = &copied
	return b
}

func (m *memoryBookingStore) get(id uuid.UUID) *models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil
	}
	copied := *b
	return &copied
}

// update applies fn to the row when guard holds, returning a copy
func (m *memoryBookingStore) update(id uuid.UUID, guard func(*models.Booking) bool, fn func(*models.Booking)) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	b, ok := m.bookings[id]
	if !ok || !guard(b) {
		return nil, nil
	}
	fn(b)
	b.UpdatedAt = time.Now()
	copied := *b
	return &copied, nil
}

func (m *memoryBookingStore) Create(_ context.Context, b *models.Booking) error {
	if m.failWith != nil {
		return m.failWith
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.put(b)
	return nil
}

func (m *memoryBookingStore) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.get(id), nil
}

func (m *memoryBookingStore) GetBySessionID(_ context.Context, sessionID string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.PaymentSessionID != nil && *b.PaymentSessionID == sessionID {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryBookingStore) list(filter func(*models.Booking) bool, limit, offset int) []*models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []*models.Booking{}
	for _, b := range m.bookings {
		if filter(b) {
			copied := *b
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if offset >= len(result) {
		return []*models.Booking{}
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result
}

func (m *memoryBookingStore) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	return m.list(func(b *models.Booking) bool { return b.UserID == userID }, limit, offset), nil
}

func (m *memoryBookingStore) ListAll(_ context.Context, limit, offset int) ([]*models.Booking, error) {
	return m.list(func(*models.Booking) bool { return true }, limit, offset), nil
}

func (m *memoryBookingStore) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.list(func(b *models.Booking) bool {
		return b.Status == models.BookingStatusPending && b.PaymentSessionID != nil && b.UpdatedAt.Before(cutoff)
	}, limit, 0), nil
}

func (m *memoryBookingStore) AttachSession(_ context.Context, id uuid.UUID, sessionID, checkoutURL string) (*models.Booking, error) {
	return m.update(id,
		func(b *models.Booking) bool { return b.Status == models.BookingStatusPending },
		func(b *models.Booking) {
			b.PaymentSessionID = &sessionID
			b.CheckoutURL = &checkoutURL
		})
}

func (m *memoryBookingStore) Cancel(_ context.Context, id, userID uuid.UUID) (*models.Booking, error) {
	return m.update(id,
		func(b *models.Booking) bool { return b.UserID == userID && b.Status.IsCancellable() },
		func(b *models.Booking) { b.Status = models.BookingStatusCancelled })
}

func (m *memoryBookingStore) UpdateDetails(_ context.Context, id, userID uuid.UUID, checkIn, checkOut time.Time, roomNumber int) (*models.Booking, error) {
	return m.update(id,
		func(b *models.Booking) bool { return b.UserID == userID && b.Status == models.BookingStatusPending },
		func(b *models.Booking) {
			b.CheckIn = checkIn
			b.CheckOut = checkOut
			b.RoomNumber = roomNumber
		})
}

func (m *memoryBookingStore) applyOrLoad(id uuid.UUID, guard func(*models.Booking) bool, fn func(*models.Booking)) (*models.Booking, bool, error) {
	updated, err := m.update(id, guard, fn)
	if err != nil {
		return nil, false, err
	}
	if updated != nil {
		return updated, true, nil
	}
	return m.get(id), false, nil
}

func (m *memoryBookingStore) MarkPaid(_ context.Context, id uuid.UUID, sessionID string) (*models.Booking, bool, error) {
	return m.applyOrLoad(id,
		func(b *models.Booking) bool {
			return b.Status == models.BookingStatusPending || b.PaymentStatus != models.PaymentStatusPaid
		},
		func(b *models.Booking) {
			if b.Status == models.BookingStatusPending {
				b.Status = models.BookingStatusPaid
			}
			b.PaymentStatus = models.PaymentStatusPaid
			if sessionID == "" {
				return
			}
			if b.PaymentSessionID == nil || *b.PaymentSessionID != sessionID {
				b.CheckoutURL = nil
			}
			paid := sessionID
			b.PaymentSessionID = &paid
		})
}

func (m *memoryBookingStore) MarkPaymentFailed(_ context.Context, id uuid.UUID) (*models.Booking, bool, error) {
	return m.applyOrLoad(id,
		func(b *models.Booking) bool { return b.PaymentStatus == models.PaymentStatusUnset },
		func(b *models.Booking) { b.PaymentStatus = models.PaymentStatusFailed })
}

func (m *memoryBookingStore) Confirm(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	return m.update(id,
		func(b *models.Booking) bool { return b.Status != models.BookingStatusCancelled },
		func(b *models.Booking) { b.Status = models.BookingStatusPaid })
}

func (m *memoryBookingStore) SetStatus(_ context.Context, id uuid.UUID, status models.BookingStatus) (*models.Booking, error) {
	return m.update(id,
		func(*models.Booking) bool { return true },
		func(b *models.Booking) { b.Status = status })
}

type fakeHotels struct {
	hotels map[uuid.UUID]*models.Hotel
}

func (f *fakeHotels) GetHotelByID(_ context.Context, id uuid.UUID) (*models.Hotel, error) {
	return f.hotels[id], nil
}

type fakeGateway struct {
	mu        sync.Mutex
	created   []uuid.UUID
	createErr error
	sessions  map[string]*CheckoutSession
	getErr    error
	// onCreate runs after the session is created, before it is returned
	onCreate func(*models.Booking)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*CheckoutSession{}}
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, booking *models.Booking, _ *models.Hotel) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, booking.ID)
	id := "cs_test_" + uuid.NewString()[:8]
	sess := &CheckoutSession{
		ID:       id,
		URL:      "https://checkout.stripe.com/c/pay/" + id,
		Metadata: map[string]string{MetadataBookingID: booking.ID.String()},
	}
	f.sessions[id] = sess
	if f.onCreate != nil {
		f.onCreate(booking)
	}
	return sess, nil
}

func (f *fakeGateway) RetrieveCheckoutSession(_ context.Context, sessionID string) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such checkout session")
	}
	return sess, nil
}

func (f *fakeGateway) markPaid(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID].Paid = true
	f.sessions[sessionID].PaymentStatus = "paid"
}

type recordingAudits struct {
	mu      sync.Mutex
	entries []*models.PaymentAudit
}

func (r *recordingAudits) Log(_ context.Context, audit *models.PaymentAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, audit)
	return nil
}

func (r *recordingAudits) ofType(eventType models.PaymentEventType) []*models.PaymentAudit {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*models.PaymentAudit
	for _, e := range r.entries {
		if e.EventType == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.BookingEvent
	err    error
}

func (r *recordingPublisher) PublishBookingEvent(_ context.Context, event *models.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

// memoryIdempotency follows the pending/complete protocol of cache.Client
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}}
}

func (m *memoryIdempotency) ClaimIdempotencyKey(_ context.Context, userID uuid.UUID, key string) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userID.String() + ":" + key
	value, ok := m.keys[k]
	if !ok {
		m.keys[k] = "pending"
		return uuid.Nil, true, nil
	}
	if value == "pending" {
		return uuid.Nil, false, cache.ErrClaimInProgress
	}
	return uuid.MustParse(value), false, nil
}

func (m *memoryIdempotency) CompleteIdempotencyKey(_ context.Context, userID uuid.UUID, key string, bookingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[userID.String()+":"+key] = bookingID.String()
	return nil
}

func (m *memoryIdempotency) ReleaseIdempotencyKey(_ context.Context, userID uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, userID.String()+":"+key)
	return nil
}

type fakeLocker struct {
	held     bool
	err      error
	released int
}

func (f *fakeLocker) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLocker) ReleaseLock(context.Context, string) error {
	f.held = false
	f.released++
	return nil
}
