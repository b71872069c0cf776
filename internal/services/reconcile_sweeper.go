package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/config"
	"github.com/staybook/hotel-booking-backend/internal/metrics"
	"github.com/staybook/hotel-booking-backend/internal/models"
)

const (
	sweeperLockName = "reconcile-sweeper"
	sweeperLockTTL  = 10 * time.Minute
)

// Locker hands out a named lock across instances
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

// SweepSummary describes one sweep
type SweepSummary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Skipped    bool      `json:"skipped"`
	Checked    int       `json:"checked"`
	Reconciled int       `json:"reconciled"`
	Unpaid     int       `json:"unpaid"`
	Errors     int       `json:"errors"`
	Error      string    `json:"error,omitempty"`
}

// SweeperStatus is reported by the admin reconcile status endpoint
type SweeperStatus struct {
	Enabled   bool          `json:"enabled"`
	Schedule  string        `json:"schedule"`
	Running   bool          `json:"running"`
	NextRun   *time.Time    `json:"nextRun,omitempty"`
	LastSweep *SweepSummary `json:"lastSweep,omitempty"`
}

// ReconcileSweeper asks the provider about PENDING bookings whose webhook
// never arrived and records the payments it finds
type ReconcileSweeper struct {
	cron       *cron.Cron
	entryID    cron.EntryID
	bookings   BookingStore
	payments   PaymentGateway
	reconciler *WebhookReconciler
	locker     Locker
	config     config.ReconcileConfig
	logger     *logrus.Logger

	mu        sync.Mutex
	running   bool
	started   bool
	lastSweep *SweepSummary
}

// NewReconcileSweeper creates a new ReconcileSweeper
func NewReconcileSweeper(
	bookings BookingStore,
	payments PaymentGateway,
	reconciler *WebhookReconciler,
	locker Locker,
	cfg config.ReconcileConfig,
	logger *logrus.Logger,
) *ReconcileSweeper {
	return &ReconcileSweeper{
		cron:       cron.New(cron.WithSeconds()),
		bookings:   bookings,
		payments:   payments,
		reconciler: reconciler,
		locker:     locker,
		config:     cfg,
		logger:     logger,
	}
}

// Start schedules the sweep
func (s *ReconcileSweeper) Start() error {
	entryID, err := s.cron.AddFunc(s.config.Schedule, s.sweepJob)
	if err != nil {
		return fmt.Errorf("failed to schedule reconcile sweep: %w", err)
	}

	s.mu.Lock()
	s.entryID = entryID
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.WithField("schedule", s.config.Schedule).Info("Reconcile sweeper started")
	return nil
}

// Stop waits for a running sweep to finish
func (s *ReconcileSweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Reconcile sweeper stopped")
}

func (s *ReconcileSweeper) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary := s.Sweep(ctx)
	s.logger.WithFields(logrus.Fields{
		"checked":    summary.Checked,
		"reconciled": summary.Reconciled,
		"errors":     summary.Errors,
		"skipped":    summary.Skipped,
		"duration":   summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("[SWEEPER] Run finished")
}

// Sweep runs one pass. Only one pass runs at a time, per process and,
// through the locker, per deployment.
func (s *ReconcileSweeper) Sweep(ctx context.Context) *SweepSummary {
	summary := &SweepSummary{StartedAt: time.Now()}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		summary.Skipped = true
		summary.FinishedAt = time.Now()
		metrics.SweeperRunsTotal.WithLabelValues("skipped").Inc()
		return summary
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		summary.FinishedAt = time.Now()
		s.mu.Lock()
		s.running = false
		s.lastSweep = summary
		s.mu.Unlock()
	}()

	acquired, err := s.locker.AcquireLock(ctx, sweeperLockName, sweeperLockTTL)
	if err != nil {
		summary.Error = err.Error()
		metrics.SweeperRunsTotal.WithLabelValues("error").Inc()
		return summary
	}
	if !acquired {
		summary.Skipped = true
		metrics.SweeperRunsTotal.WithLabelValues("skipped").Inc()
		return summary
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), sweeperLockName); err != nil {
			s.logger.WithError(err).Warn("Failed to release sweeper lock")
		}
	}()

	cutoff := time.Now().Add(-s.config.MinAge)
	stale, err := s.bookings.ListStalePending(ctx, cutoff, s.config.Batch)
	if err != nil {
		summary.Error = err.Error()
		metrics.SweeperRunsTotal.WithLabelValues("error").Inc()
		return summary
	}

	for _, booking := range stale {
		if ctx.Err() != nil {
			summary.Error = ctx.Err().Error()
			break
		}
		s.reconcile(ctx, booking, summary)
	}

	outcome := "ok"
	if summary.Errors > 0 || summary.Error != "" {
		outcome = "error"
	}
	metrics.SweeperRunsTotal.WithLabelValues(outcome).Inc()
	return summary
}

func (s *ReconcileSweeper) reconcile(ctx context.Context, booking *models.Booking, summary *SweepSummary) {
	if booking.PaymentSessionID == nil {
		return
	}
	summary.Checked++
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"session_id": *booking.PaymentSessionID,
	})

	sess, err := s.payments.RetrieveCheckoutSession(ctx, *booking.PaymentSessionID)
	if err != nil {
		summary.Errors++
		log.WithError(err).Warn("[SWEEPER] Failed to retrieve checkout session")
		return
	}
	if !sess.Paid {
		summary.Unpaid++
		return
	}

	outcome, err := s.reconciler.applyPaid(ctx, paidUpdate{
		BookingID: booking.ID,
		SessionID: sess.ID,
		Source:    models.PaymentSourceSweeper,
	})
	if err != nil {
		summary.Errors++
		log.WithError(err).Error("[SWEEPER] Failed to record payment")
		return
	}
	if outcome == OutcomeApplied {
		summary.Reconciled++
		metrics.SweeperReconciledTotal.Inc()
		log.Warn("[SWEEPER] Recorded payment whose webhook never arrived")
	}
}

// Status reports the schedule and the last sweep
func (s *ReconcileSweeper) Status() SweeperStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SweeperStatus{
		Enabled:   s.started,
		Schedule:  s.config.Schedule,
		Running:   s.running,
		LastSweep: s.lastSweep,
	}
	if s.started {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}
