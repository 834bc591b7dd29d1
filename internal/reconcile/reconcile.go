package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/funnycal/fulfillment/internal/metrics"
	"github.com/funnycal/fulfillment/internal/order"
)

// SessionLister is the payment provider's view: ids of completed, paid
// checkout sessions created inside a window.
type SessionLister interface {
	ListPaidCheckoutSessions(ctx context.Context, start, end time.Time) ([]string, error)
}

// OrderLister is the local view: all live order records.
type OrderLister interface {
	List() ([]*order.Order, error)
}

// Window is echoed back in the report so the caller can see what range
// was actually compared.
type Window struct {
	StartUnix int64 `json:"startUnix"`
	EndUnix   int64 `json:"endUnix"`
}

// Report is the symmetric difference between the provider's paid sessions
// and the local order store over one time window.
type Report struct {
	Range            Window   `json:"range"`
	StripePaidCount  int      `json:"stripePaidCount"`
	LocalOrderCount  int      `json:"localOrderCount"`
	StripeNotInLocal []string `json:"stripeNotInLocal"`
	LocalNotInStripe []string `json:"localNotInStripe"`
}

// Reconciler cross-checks the payment provider against the order store.
// It is read-only: it never mutates either side.
type Reconciler struct {
	sessions SessionLister
	orders   OrderLister
	logger   *zap.Logger
}

func New(sessions SessionLister, orders OrderLister, logger *zap.Logger) *Reconciler {
	return &Reconciler{sessions: sessions, orders: orders, logger: logger}
}

// Run fetches both sides concurrently and diffs the id sets. Orders count
// as local when their CreatedAt falls inside [start, end].
func (r *Reconciler) Run(ctx context.Context, start, end time.Time) (*Report, error) {
	var (
		remoteIDs []string
		localIDs  []string
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := r.sessions.ListPaidCheckoutSessions(ctx, start, end)
		if err != nil {
			return fmt.Errorf("list paid sessions: %w", err)
		}
		remoteIDs = ids
		return nil
	})
	g.Go(func() error {
		orders, err := r.orders.List()
		if err != nil {
			return fmt.Errorf("list local orders: %w", err)
		}
		for _, o := range orders {
			if !o.CreatedAt.Before(start) && !o.CreatedAt.After(end) {
				localIDs = append(localIDs, o.OrderID)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("reconcile").Inc()
		return nil, err
	}

	report := &Report{
		Range:            Window{StartUnix: start.Unix(), EndUnix: end.Unix()},
		StripePaidCount:  len(remoteIDs),
		LocalOrderCount:  len(localIDs),
		StripeNotInLocal: difference(remoteIDs, localIDs),
		LocalNotInStripe: difference(localIDs, remoteIDs),
	}

	metrics.ReconcileRunsTotal.Inc()
	r.logger.Info("reconciliation complete",
		zap.Int("stripe_paid", report.StripePaidCount),
		zap.Int("local_orders", report.LocalOrderCount),
		zap.Int("missing_locally", len(report.StripeNotInLocal)),
		zap.Int("orphaned_locally", len(report.LocalNotInStripe)))
	return report, nil
}

// difference returns the elements of a that are not in b, preserving
// a's order.
func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, id := range b {
		inB[id] = struct{}{}
	}
	out := []string{}
	for _, id := range a {
		if _, ok := inB[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
