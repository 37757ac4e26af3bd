package payments

import (
	"context"
	"log"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
)

// Sweeper re-queries tracked sessions that stayed pending, so a payment whose
// notifications were all lost still settles.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
}

func (w *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		if n, err := w.SweepOnce(ctx); err != nil {
			log.Printf("sweeper: %v", err)
		} else if n > 0 {
			log.Printf("sweeper: reconciled %d stale sessions", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// SweepOnce reconciles one batch and returns how many settled.
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	batch := w.Batch
	if batch <= 0 {
		batch = 50
	}
	stale, err := w.Service.Store.ListStalePending(ctx, w.Service.now().Add(-w.MinAge), batch)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, tx := range stale {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		res, err := w.Service.Reconcile(ctx, tx.TrackingID, SourceSweeper)
		switch {
		case err != nil && apperr.KindOf(err) == apperr.KindExternal:
			// gateway trouble: stop and try the whole batch next tick
			return settled, err
		case err != nil:
			log.Printf("sweeper: tracking=%s transaction=%s: %v", tx.TrackingID, tx.ID, err)
		case res.Outcome == OutcomeApplied:
			settled++
		}
	}
	return settled, nil
}
