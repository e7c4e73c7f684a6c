package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal labels: method, route (gin full path), code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitm_http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mitm_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// placesLookupsTotal labels: outcome (ok/error)
	placesLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitm_places_lookups_total",
			Help: "Places directory lookups by outcome",
		},
		[]string{"outcome"},
	)

	placesLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mitm_places_lookup_duration_seconds",
			Help:    "Places directory lookup latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// votesTotal labels: direction (on/off)
	votesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitm_votes_toggled_total",
			Help: "Suggested location vote toggles by direction",
		},
		[]string{"direction"},
	)

	finalizationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mitm_finalizations_total",
			Help: "Suggested locations finalized",
		},
	)
)

func RecordHTTP(method, route string, code int, seconds float64) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(seconds)
}

func RecordPlacesLookup(ok bool, seconds float64) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	placesLookupsTotal.WithLabelValues(outcome).Inc()
	placesLookupDuration.Observe(seconds)
}

// RecordVote counts a toggle; on is true when the vote was added.
func RecordVote(on bool) {
	direction := "off"
	if on {
		direction = "on"
	}
	votesTotal.WithLabelValues(direction).Inc()
}

func RecordFinalize() {
	finalizationsTotal.Inc()
}
