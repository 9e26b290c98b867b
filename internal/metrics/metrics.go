package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	QuotesTotal          prometheus.Counter
	OrdersPlaced         prometheus.Counter
	CheckoutFailures     *prometheus.CounterVec
	InventoryAdjustments *prometheus.CounterVec
	DiscountRedemptions  prometheus.Counter
	RateLimited          prometheus.Counter
	CheckoutDurationSec  prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	quotes := prometheus.NewCounter(prometheus.CounterOpts{Name: "marketplace_quotes_total"})
	placed := prometheus.NewCounter(prometheus.CounterOpts{Name: "marketplace_orders_placed_total"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "marketplace_checkout_failures_total"}, []string{"kind"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "marketplace_inventory_adjustments_total"}, []string{"movement_type"})
	redemptions := prometheus.NewCounter(prometheus.CounterOpts{Name: "marketplace_discount_redemptions_total"})
	limited := prometheus.NewCounter(prometheus.CounterOpts{Name: "marketplace_rate_limited_total"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketplace_checkout_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(quotes, placed, failures, adjustments, redemptions, limited, duration)
	return &Registry{
		reg:                  r,
		QuotesTotal:          quotes,
		OrdersPlaced:         placed,
		CheckoutFailures:     failures,
		InventoryAdjustments: adjustments,
		DiscountRedemptions:  redemptions,
		RateLimited:          limited,
		CheckoutDurationSec:  duration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
