package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "user_registrations_total",
			Help: "Total successful user registrations",
		},
	)

	eventsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_created_total",
			Help: "Total events created",
		},
	)

	ticketSales = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_sales_total",
			Help: "Total completed ticket sales by transaction type",
		},
		[]string{"type"},
	)

	resaleListings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_listing_operations_total",
			Help: "Resale listing operations",
		},
		[]string{"operation"},
	)
)

func UserRegistered() {
	registrations.Inc()
}

func EventCreated() {
	eventsCreated.Inc()
}

func TicketSold(saleType string) {
	ticketSales.WithLabelValues(saleType).Inc()
}

func ResaleListed() {
	resaleListings.WithLabelValues("listed").Inc()
}

func ResaleCancelled() {
	resaleListings.WithLabelValues("cancelled").Inc()
}
