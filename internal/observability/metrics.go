package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	engineFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htlvc",
			Subsystem: "engine",
			Name:      "frames_total",
			Help:      "Inbound frames by processing outcome.",
		},
		[]string{"outcome"},
	)
	engineReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htlvc",
			Subsystem: "engine",
			Name:      "reports_total",
			Help:      "Report frames by emit outcome.",
		},
		[]string{"outcome"},
	)
	nestedFragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htlvc",
			Subsystem: "engine",
			Name:      "nested_fragments_total",
			Help:      "Nested sub-records by result.",
		},
		[]string{"result"},
	)
	transportFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htlvc",
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Frames crossing a transport link.",
		},
		[]string{"method", "direction"},
	)
	transportDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htlvc",
			Subsystem: "transport",
			Name:      "drops_total",
			Help:      "Frames dropped by a transport before reaching the engine or the wire.",
		},
		[]string{"method", "reason"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "htlvc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"device", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "htlvc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"device", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			engineFrames,
			engineReports,
			nestedFragments,
			transportFrames,
			transportDrops,
			httpRequests,
			httpDuration,
		)
	})
}

// Outcome maps an engine error onto a stable metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrTruncated):
		return "truncated"
	case errors.Is(err, protocol.ErrBadHeader):
		return "bad_header"
	case errors.Is(err, protocol.ErrLengthOverflow):
		return "length_overflow"
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, protocol.ErrValueTooLarge):
		return "value_too_large"
	case errors.Is(err, protocol.ErrUnknownTag):
		return "unknown_tag"
	case errors.Is(err, protocol.ErrNestingTooDeep):
		return "nesting_too_deep"
	case errors.Is(err, protocol.ErrNestedEmpty):
		return "nested_empty"
	case errors.Is(err, protocol.ErrAllocation):
		return "allocation"
	case errors.Is(err, protocol.ErrNotRegistered):
		return "not_registered"
	default:
		return "error"
	}
}

func RecordFrame(err error) {
	RegisterMetrics()
	engineFrames.WithLabelValues(Outcome(err)).Inc()
}

func RecordReport(err error) {
	RegisterMetrics()
	engineReports.WithLabelValues(Outcome(err)).Inc()
}

func RecordNested(result string) {
	RegisterMetrics()
	nestedFragments.WithLabelValues(result).Inc()
}

func RecordTransportFrame(method, direction string) {
	RegisterMetrics()
	transportFrames.WithLabelValues(method, direction).Inc()
}

func RecordTransportDrop(method, reason string) {
	RegisterMetrics()
	transportDrops.WithLabelValues(method, reason).Inc()
}

func RecordHTTPRequest(device, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(device, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(device, method, path, statusLabel).Observe(duration.Seconds())
}
