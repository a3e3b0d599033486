package generator

import "github.com/prometheus/client_golang/prometheus"

var (
	metricRecordsMapped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "grapl", Subsystem: "sysmon_generator", Name: "records_mapped_total", Help: "Total telemetry records mapped into subgraphs."},
	)
	metricRecordsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "grapl", Subsystem: "sysmon_generator", Name: "records_dropped_total", Help: "Total telemetry records dropped, by reason."},
		[]string{"reason"},
	)
	metricBatchesHandled = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "grapl", Subsystem: "sysmon_generator", Name: "batches_total", Help: "Total payloads processed into batches."},
	)
	metricSinkFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "grapl", Subsystem: "sysmon_generator", Name: "sink_failures_total", Help: "Total failed batch handoffs."},
	)
)

func init() {
	_ = prometheus.Register(metricRecordsMapped)
	_ = prometheus.Register(metricRecordsDropped)
	_ = prometheus.Register(metricBatchesHandled)
	_ = prometheus.Register(metricSinkFailures)
}
