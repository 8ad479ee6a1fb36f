// Package metrics holds the Prometheus collectors for outbound calls,
// referral storage and change notifications.
//
// Collectors are registered on the default registry at init. Only fixed,
// low-cardinality labels are used: operation names and outcome classes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for outbound requests.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeError     = "error"
	OutcomeAbsent    = "absent"
	OutcomeLocalFail = "local_failure"
)

var (
	outboundRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reflink_outbound_requests_total",
		Help: "Outbound backend calls by operation and outcome",
	}, []string{"operation", "outcome"})
	outboundDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reflink_outbound_request_duration_seconds",
		Help:    "Latency of outbound backend calls that reached the network",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})
	referralsStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reflink_referrals_stored_total",
		Help: "Referral stores, split by whether the value changed",
	}, []string{"changed"})
	notificationsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reflink_notifications_delivered_total",
		Help: "Identifier change notifications handed to an observer",
	})
	notificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reflink_notifications_without_observer_total",
		Help: "Identifier change notifications dispatched while no observer was set",
	})
	observerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reflink_observer_panics_total",
		Help: "Panics recovered from identifier observers",
	})
	notificationQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reflink_notification_queue_depth",
		Help: "Notifications waiting for the notifier worker",
	})
)

func init() {
	prometheus.MustRegister(
		outboundRequests,
		outboundDuration,
		referralsStored,
		notificationsDelivered,
		notificationsDropped,
		observerPanics,
		notificationQueueDepth,
	)
}

// ObserveRequest records one outbound call. A zero duration means the call
// never reached the network and only the counter moves.
func ObserveRequest(operation, outcome string, d time.Duration) {
	outboundRequests.WithLabelValues(operation, outcome).Inc()
	if d > 0 {
		outboundDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// ObserveReferralStored records a referral store.
func ObserveReferralStored(changed bool) {
	if changed {
		referralsStored.WithLabelValues("true").Inc()
		return
	}
	referralsStored.WithLabelValues("false").Inc()
}

// ObserveNotification records a dispatched notification.
func ObserveNotification(delivered bool) {
	if delivered {
		notificationsDelivered.Inc()
		return
	}
	notificationsDropped.Inc()
}

// ObserveObserverPanic records a recovered observer panic.
func ObserveObserverPanic() {
	observerPanics.Inc()
}

// SetQueueDepth publishes the current notifier backlog.
func SetQueueDepth(n int) {
	notificationQueueDepth.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
