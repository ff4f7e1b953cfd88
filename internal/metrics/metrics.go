package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "edengolf"

var (
	once sync.Once

	fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_fetch_total",
			Help:      "Count of backend availability fetches by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Count of completed poll cycles by outcome.",
		},
		[]string{"outcome"},
	)

	staleDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_stale_discarded_total",
			Help:      "Count of poll results dropped because a newer cycle had started.",
		},
	)

	selectionInvalidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_invalidated_total",
			Help:      "Count of selections cleared because the slot or caddy was taken.",
		},
		[]string{"kind"},
	)

	holdAcquire = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_acquire_total",
			Help:      "Count of soft-hold acquisitions by outcome.",
		},
		[]string{"outcome"},
	)

	lockedSlots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locked_slots",
			Help:      "Locked tee times on the watched date by course.",
		},
		[]string{"course_type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			fetches,
			pollCycles,
			staleDiscarded,
			selectionInvalidated,
			holdAcquire,
			lockedSlots,
			httpRequests,
		)
	})
}

func IncFetch(source string, ok bool) {
	fetches.WithLabelValues(source, outcome(ok)).Inc()
}

func IncPollCycle(ok bool) {
	pollCycles.WithLabelValues(outcome(ok)).Inc()
}

func IncStaleDiscarded() {
	staleDiscarded.Inc()
}

func IncSelectionInvalidated(kind string) {
	selectionInvalidated.WithLabelValues(kind).Inc()
}

func IncHoldAcquire(result string) {
	holdAcquire.WithLabelValues(result).Inc()
}

func SetLockedSlots(courseType string, n int) {
	lockedSlots.WithLabelValues(courseType).Set(float64(n))
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
