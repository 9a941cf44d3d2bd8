// Package reconciler revisits orders that were never verified: customers
// abandon checkout, webhooks get lost, networks partition. Each sweep
// re-verifies stale pending orders against their provider; orders that
// exhaust their attempt budget are expired.
package reconciler

import (
	"context"
	"log"
	"time"

	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
)

// verifier is the slice of OrderService the reconciler needs.
type verifier interface {
	Verify(ctx context.Context, reference string) (bool, error)
}

type Reconciler struct {
	repo        repository.OrderRepository
	orders      verifier
	tick        time.Duration
	pendingAge  time.Duration
	maxAttempts int
	batchSize   int
}

func New(repo repository.OrderRepository, orders verifier) *Reconciler {
	return &Reconciler{
		repo:        repo,
		orders:      orders,
		tick:        time.Minute,
		pendingAge:  30 * time.Minute,
		maxAttempts: 5,
		batchSize:   50,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.pendingAge)
	orders, err := r.repo.FindStalePending(ctx, cutoff, r.batchSize)
	if err != nil {
		log.Printf("reconciler: failed to load stale orders: %v", err)
		return
	}

	for _, order := range orders {
		r.reconcile(ctx, order)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, order domain.Order) {
	if err := r.repo.IncrementVerifyAttempts(ctx, order.Reference); err != nil {
		log.Printf("reconciler: failed to count attempt for %s: %v", order.Reference, err)
		return
	}

	paid, err := r.orders.Verify(ctx, order.Reference)
	if err != nil {
		log.Printf("reconciler: verify %s failed: %v", order.Reference, err)
	}
	if paid {
		log.Printf("reconciler: order %s confirmed paid", order.Reference)
		return
	}

	if order.VerifyAttempts+1 >= r.maxAttempts {
		// Conditional on still-pending, so an order that went paid between
		// the verify and this update is left alone.
		expired, err := r.repo.MarkExpired(ctx, order.Reference)
		if err != nil {
			log.Printf("reconciler: failed to expire %s: %v", order.Reference, err)
			return
		}
		if expired {
			log.Printf("reconciler: order %s expired after %d attempts", order.Reference, order.VerifyAttempts+1)
		}
	}
}
