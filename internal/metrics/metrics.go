package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnycal_orders_created_total",
		Help: "Total number of orders created from payment events.",
	})

	StatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnycal_status_updates_total",
		Help: "Total number of successful order status updates.",
	},
		[]string{"status"},
	)

	OrdersArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnycal_orders_archived_total",
		Help: "Total number of orders moved to the archive partition.",
	})

	ExportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnycal_order_exports_total",
		Help: "Total number of order file bundles served.",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnycal_webhook_events_total",
		Help: "Total number of payment webhook deliveries by result.",
	},
		[]string{"result"},
	)

	NotificationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnycal_notification_errors_total",
		Help: "Total number of failed email notification attempts.",
	},
		[]string{"kind"},
	)

	ReconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnycal_reconcile_runs_total",
		Help: "Total number of reconciliation runs against the payment provider.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnycal_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	OrderCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "funnycal_order_cache_items",
		Help: "Current number of live orders held in the read cache.",
	})
)
