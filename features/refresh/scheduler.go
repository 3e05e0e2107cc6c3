package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"marketlens/backend/features/product"
)

// SweepLimit caps how many stale products one sweep refreshes.
const SweepLimit = 50

type StaleLister interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]product.Product, error)
}

type Refresher interface {
	RefreshAllReviews(ctx context.Context, productID string, opts Options) (*Result, error)
}

// Scheduler periodically refreshes products whose reviews went stale.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	products  StaleLister
	refresher Refresher
	maxAge    time.Duration
	now       func() time.Time
}

func NewScheduler(spec string, products StaleLister, refresher Refresher, maxAge time.Duration) *Scheduler {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Scheduler{
		cron:      cron.New(),
		spec:      spec,
		products:  products,
		refresher: refresher,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	slog.Info("refresh scheduler started", "spec", s.spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("refresh scheduler stopped")
}

// Sweep refreshes every stale product once and returns how many it started.
func (s *Scheduler) Sweep(ctx context.Context) int {
	stale, err := s.products.ListStale(ctx, s.now().Add(-s.maxAge), SweepLimit)
	if err != nil {
		slog.ErrorContext(ctx, "stale product lookup failed", "error", err)
		return 0
	}

	refreshed := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			break
		}
		res, err := s.refresher.RefreshAllReviews(ctx, p.ID, Options{})
		if err != nil {
			slog.ErrorContext(ctx, "scheduled refresh failed", "product_id", p.ID, "error", err)
			continue
		}
		if !res.Success {
			slog.WarnContext(ctx, "scheduled refresh incomplete", "product_id", p.ID, "error", res.Error)
		}
		refreshed++
	}
	slog.InfoContext(ctx, "refresh sweep complete", "stale", len(stale), "refreshed", refreshed)
	return refreshed
}
