package main

import (
	"log/slog"
	"net/http"

	"github.com/ilardm/strvup/pkg/http/rate"
	"github.com/ilardm/strvup/pkg/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "strvup"

var (
	registry = prometheus.NewRegistry()

	inFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_in_flight_requests",
		Help:      "A gauge of in-flight requests for the Strava client.",
	})

	clientRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_api_requests_total",
			Help:      "A counter for requests from the Strava client.",
		},
		[]string{"code", "method"},
	)

	// tlsLatencyVec is labeled by the TLSHandshakeStart and TLSHandshakeDone
	// hooks of trace below.
	tlsLatencyVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tls_duration_seconds",
			Help:      "Trace tls latency histogram.",
			Buckets:   []float64{.05, .1, .25, .5},
		},
		[]string{"event"},
	)

	histVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "A histogram of request latencies.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{},
	)

	trace = &promhttp.InstrumentTrace{
		TLSHandshakeStart: func(t float64) {
			tlsLatencyVec.WithLabelValues("tls_handshake_start").Observe(t)
		},
		TLSHandshakeDone: func(t float64) {
			tlsLatencyVec.WithLabelValues("tls_handshake_done").Observe(t)
		},
	}

	rateLimiterLimitGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limiter_limit",
		Help:      "A gauge of the requests allowed per 15 minutes by the API rate limit.",
	})

	rateLimiterRemainingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limiter_remaining",
		Help:      "A gauge of the remaining requests allowed by the API rate limit.",
	})

	filesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "A counter of processed input files by outcome.",
		},
		[]string{"outcome"},
	)

	pointsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merged_points_total",
		Help:      "A counter of track points that received a heart rate.",
	})

	uploadsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "A counter of upload candidates by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	registry.MustRegister(
		inFlightGauge,
		clientRequestCounter,
		tlsLatencyVec,
		histVec,
		rateLimiterLimitGauge,
		rateLimiterRemainingGauge,
		filesCounter,
		pointsCounter,
		uploadsCounter,
	)
}

func instrumentTransport(rateLimitHeaderKeys rate.HeaderKeys) func(t http.RoundTripper) http.RoundTripper {
	return func(t http.RoundTripper) http.RoundTripper {
		return promhttp.InstrumentRoundTripperInFlight(
			inFlightGauge,
			promhttp.InstrumentRoundTripperCounter(
				clientRequestCounter,
				promhttp.InstrumentRoundTripperTrace(
					trace,
					promhttp.InstrumentRoundTripperDuration(
						histVec,
						instrumentRoundTripperRateLimitHeader(
							rateLimiterLimitGauge,
							rateLimiterRemainingGauge,
							rateLimitHeaderKeys,
							t,
						),
					),
				),
			),
		)
	}
}

func instrumentRoundTripperRateLimitHeader(limitGauge, remainingGauge prometheus.Gauge, rateLimitHeaders rate.HeaderKeys, next http.RoundTripper) promhttp.RoundTripperFunc {
	return promhttp.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		response, err := next.RoundTrip(r)
		if err != nil {
			return response, err
		}
		limit, lerr := rate.LimitFromHeader(response.Header, rateLimitHeaders)
		if lerr != nil {
			slog.Debug("no rate limit in response", "error", lerr)
			return response, err
		}
		limitGauge.Set(float64(limit.Limit))
		remainingGauge.Set(float64(limit.Remaining))
		return response, err
	})
}

func recordRun(res *pipeline.Result) {
	for _, f := range res.Files {
		if f.Err != nil {
			filesCounter.WithLabelValues("failed").Inc()
			continue
		}
		filesCounter.WithLabelValues("merged").Inc()
		pointsCounter.Add(float64(f.Stats.Points))
	}
	for _, u := range res.Uploads {
		outcome := "ok"
		if u.Err != nil {
			outcome = "failed"
		}
		uploadsCounter.WithLabelValues(outcome).Inc()
	}
}

func writeMetrics(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
