package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Seat map operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	seatsChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_seats_total",
			Help: "Seats flipped by committed reserve and release operations",
		},
		[]string{"operation"},
	)

	lockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_lock_wait_seconds",
			Help:    "Time spent waiting for a show or screen lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"scope"},
	)

	editConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_edit_conflicts_total",
			Help: "Seat map writes retried after an optimistic version conflict",
		},
	)

	notificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Notifications discarded because the dispatch queue was full",
		},
	)

	notificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notifications whose delivery returned an error",
		},
	)
)

// TrackOperation counts a finished operation. outcome is OutcomeSuccess or an
// error code.
func TrackOperation(operation, outcome string) {
	bookingOperations.WithLabelValues(operation, outcome).Inc()
}

func TrackSeats(operation string, count int) {
	seatsChanged.WithLabelValues(operation).Add(float64(count))
}

func TrackLockWait(scope string, d time.Duration) {
	lockWait.WithLabelValues(scope).Observe(d.Seconds())
}

func TrackEditConflict() {
	editConflicts.Inc()
}

func TrackNotificationDropped() {
	notificationsDropped.Inc()
}

func TrackNotificationFailed() {
	notificationsFailed.Inc()
}
