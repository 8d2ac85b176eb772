package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "skovkrogen",
			Name:      "booking_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "skovkrogen",
			Name:      "booking_deleted_total",
			Help:      "Count of bookings deleted by their owner.",
		},
	)

	bookingRenamed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "skovkrogen",
			Name:      "booking_renamed_total",
			Help:      "Count of guest name edits.",
		},
	)

	checklistToggled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skovkrogen",
			Name:      "checklist_toggle_total",
			Help:      "Count of checklist toggles by item.",
		},
		[]string{"item"},
	)

	selectionClicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skovkrogen",
			Name:      "selection_click_total",
			Help:      "Count of calendar clicks by outcome.",
		},
		[]string{"outcome"},
	)

	workflowErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skovkrogen",
			Name:      "workflow_error_total",
			Help:      "Count of rejected or failed mutations by kind.",
		},
		[]string{"kind"},
	)

	overlapConflicts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skovkrogen",
			Name:      "overlapping_bookings",
			Help:      "Pairs of confirmed bookings sharing a day in the last snapshot.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skovkrogen",
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status.",
		},
		[]string{"route", "status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingDeleted,
			bookingRenamed,
			checklistToggled,
			selectionClicks,
			workflowErrors,
			overlapConflicts,
			httpRequests,
		)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingDeleted() {
	bookingDeleted.Inc()
}

func IncBookingRenamed() {
	bookingRenamed.Inc()
}

func IncChecklistToggled(item string) {
	checklistToggled.WithLabelValues(item).Inc()
}

func IncSelectionClick(outcome string) {
	selectionClicks.WithLabelValues(outcome).Inc()
}

func IncWorkflowError(kind string) {
	workflowErrors.WithLabelValues(kind).Inc()
}

func SetOverlapConflicts(n int) {
	overlapConflicts.Set(float64(n))
}

func IncHTTP(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}
