package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/selfie/internal/identity/store"
)

const (
	sweepPageSize    = 100
	sweepPagesPerSec = 10
)

// TokenSweeper is the repository surface the housekeeper needs.
// *store.Users implements it.
type TokenSweeper interface {
	SweepTokenIndex(ctx context.Context, index store.TokenIndex, after string, limit int, now time.Time) (store.SweepResult, error)
}

// HousekeepingService periodically removes verification and reset index
// entries that no longer match their user. Expired reset flows are counted
// and left for the next reset to replace.
type HousekeepingService struct {
	Users    TokenSweeper
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	// limiter paces page scans so a sweep does not monopolise the store.
	limiter *rate.Limiter

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeper that runs every interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(users TokenSweeper, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Users:    users,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		limiter:  rate.NewLimiter(rate.Limit(sweepPagesPerSec), 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop is called.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop signals the worker and blocks until the in-progress sweep returns.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep walks both token indices once. A failure in one index does not stop
// the other.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	s.Logger.Info("starting housekeeping sweep")

	var total store.SweepResult
	for _, index := range []store.TokenIndex{store.VerificationIndex, store.ResetIndex} {
		res, err := s.sweepIndex(ctx, index)
		total.Scanned += res.Scanned
		total.Removed += res.Removed
		total.Expired += res.Expired
		if err != nil {
			s.Logger.Error("token index sweep failed", "index", string(index), "error", err)
		}
	}

	s.Logger.Info("housekeeping sweep completed",
		"scanned", total.Scanned,
		"removed", total.Removed,
		"expired", total.Expired,
	)
}

func (s *HousekeepingService) sweepIndex(ctx context.Context, index store.TokenIndex) (store.SweepResult, error) {
	var total store.SweepResult
	cursor := ""
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return total, err
		}

		res, err := s.Users.SweepTokenIndex(ctx, index, cursor, sweepPageSize, s.Now())
		if err != nil {
			return total, err
		}
		total.Scanned += res.Scanned
		total.Removed += res.Removed
		total.Expired += res.Expired

		if res.Next == "" {
			return total, nil
		}
		cursor = res.Next
	}
}
