package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

const (
	MetricsNamespace = "deflake"
)

var (
	Debug                bool = false
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "attempts_total",
		Help:      "Count of test attempts by outcome",
	}, []string{
		"test",
		"kind",
	})

	attemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "attempt_duration_seconds",
		Help:      "Duration of single test attempts",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		"kind",
	})

	attemptsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "attempts_in_flight",
		Help:      "Number of attempts currently running",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "sessions_total",
		Help:      "Count of finished sessions by status",
	}, []string{
		"status",
	})

	sessionDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_duration_seconds",
		Help:      "Wall time of a finished session",
	}, []string{
		"session_id",
	})

	sessionFlakyTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_flaky_tests",
		Help:      "Number of tests with both passing and failing attempts in a session",
	}, []string{
		"session_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordAttempt counts one finished attempt.
func RecordAttempt(test string, kind types.OutcomeKind, elapsed time.Duration) {
	if Debug {
		log.Debug("metric inc",
			"m", "attempts_total",
			"test", test,
			"kind", kind)
	}
	attemptsTotal.WithLabelValues(test, string(kind)).Inc()
	attemptDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// RecordSession records the result of a finalized session.
func RecordSession(sessionID string, status types.SessionStatus, duration time.Duration, flaky int) {
	sessionsTotal.WithLabelValues(string(status)).Inc()
	sessionDuration.WithLabelValues(sessionID).Set(duration.Seconds())
	sessionFlakyTests.WithLabelValues(sessionID).Set(float64(flaky))
}
