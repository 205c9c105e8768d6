package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// LinesCapturedTotal is the total number of log lines copied from a source.
	LinesCapturedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bootlogger",
			Name:      "lines_captured_total",
			Help:      "Total log lines captured per source.",
		},
		[]string{"source"},
	)

	// FilterMatchesTotal is the total number of lines accepted by a filter.
	FilterMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bootlogger",
			Name:      "filter_matches_total",
			Help:      "Lines accepted by each filter.",
		},
		[]string{"source", "filter"},
	)

	// DenialParseErrorsTotal is the total number of AVC lines that could not be parsed.
	DenialParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bootlogger",
			Name:      "denial_parse_errors_total",
			Help:      "AVC lines rejected by the parser, by reason.",
		},
		[]string{"reason"},
	)

	// RulesGeneratedTotal is the number of allow rules written.
	RulesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bootlogger",
			Name:      "rules_generated_total",
			Help:      "Unique sepolicy allow rules written per source.",
		},
		[]string{"source"},
	)

	// FilesWrittenTotal is the number of filtered output files written.
	FilesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bootlogger",
			Name:      "files_written_total",
			Help:      "Filtered log files written.",
		},
		[]string{"source", "filter"},
	)

	// CaptureErrorsTotal is the number of capture tasks that aborted.
	CaptureErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bootlogger",
			Name:      "capture_errors_total",
			Help:      "Capture tasks that aborted on an I/O error.",
		},
		[]string{"source"},
	)

	// BootDurationSeconds is the uptime at which boot completed.
	BootDurationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bootlogger",
			Name:      "boot_duration_seconds",
			Help:      "System uptime when sys.boot_completed was observed.",
		},
	)
)

func init() {
	metrics.Registry.MustRegister(
		LinesCapturedTotal,
		FilterMatchesTotal,
		DenialParseErrorsTotal,
		RulesGeneratedTotal,
		FilesWrittenTotal,
		CaptureErrorsTotal,
		BootDurationSeconds,
	)
}
