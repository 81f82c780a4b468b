// Package metrics holds the module's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics for the booking core.
type Metrics struct {
	BookingsCreated   prometheus.Counter
	BookingsCancelled prometheus.Counter
	BookingFailures   *prometheus.CounterVec // labelled by reason
	WalletDebits      prometheus.Counter
	WalletCredits     prometheus.Counter
	TicketFailures    prometheus.Counter
	NotifyFailures    prometheus.Counter
	FareCharged       prometheus.Histogram
}

// New registers and returns the module's metrics under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		BookingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "The total number of confirmed bookings",
		}),
		BookingsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_cancelled_total",
			Help:      "The total number of cancelled bookings",
		}),
		BookingFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_failures_total",
			Help:      "Booking attempts rejected, by reason",
		}, []string{"reason"}),
		WalletDebits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_debits_total",
			Help:      "The total number of wallet debits applied",
		}),
		WalletCredits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_credits_total",
			Help:      "The total number of wallet credits applied",
		}),
		TicketFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_render_failures_total",
			Help:      "Ticket renders that failed after a confirmed booking",
		}),
		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Ticket deliveries that failed",
		}),
		FareCharged: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fare_charged",
			Help:      "Total fare charged per booking",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
}
