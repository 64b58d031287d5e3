// Package metrics exposes wear and operation accounting for nvrec as
// Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for one record manager.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	slotSize int

	// Physical device traffic
	deviceWritesTotal       *prometheus.CounterVec
	deviceReadsTotal        prometheus.Counter
	deviceBytesWrittenTotal prometheus.Counter
	deviceBytesReadTotal    prometheus.Counter
	deviceErrorsTotal       *prometheus.CounterVec

	// Record manager operations
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	writesElidedTotal prometheus.Counter
	crcFailuresTotal  prometheus.Counter
	edition           prometheus.Gauge
}

// New creates and registers all metrics in a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates and registers all metrics in reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		deviceWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvrec_device_writes_total",
				Help: "Physical block writes per wear-leveling slot",
			},
			[]string{"slot"},
		),
		deviceReadsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nvrec_device_reads_total",
				Help: "Physical block reads",
			},
		),
		deviceBytesWrittenTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nvrec_device_bytes_written_total",
				Help: "Bytes written to the device",
			},
		),
		deviceBytesReadTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nvrec_device_bytes_read_total",
				Help: "Bytes read from the device",
			},
		),
		deviceErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvrec_device_errors_total",
				Help: "Failed physical block transfers",
			},
			[]string{"direction"},
		),

		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvrec_operations_total",
				Help: "Record manager operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nvrec_operation_duration_seconds",
				Help:    "Record manager operation duration in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"operation"},
		),
		writesElidedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nvrec_writes_elided_total",
				Help: "Writes skipped because the record was clean",
			},
		),
		crcFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nvrec_crc_failures_total",
				Help: "Reads that found a record with a bad checksum",
			},
		),
		edition: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nvrec_edition",
				Help: "Edition of the record currently held in memory",
			},
		),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetSlotSize sets the slot size used to label device writes by slot.
// Zero labels every write as slot 0.
func (m *Metrics) SetSlotSize(size int) {
	if m == nil {
		return
	}
	m.slotSize = size
}

// ObserveDeviceRead implements device.Observer.
func (m *Metrics) ObserveDeviceRead(bytes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.deviceErrorsTotal.WithLabelValues("read").Inc()
		return
	}
	m.deviceReadsTotal.Inc()
	m.deviceBytesReadTotal.Add(float64(bytes))
}

// ObserveDeviceWrite implements device.Observer.
func (m *Metrics) ObserveDeviceWrite(addr, bytes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.deviceErrorsTotal.WithLabelValues("write").Inc()
		return
	}
	slot := 0
	if m.slotSize > 0 {
		slot = addr / m.slotSize
	}
	m.deviceWritesTotal.WithLabelValues(strconv.Itoa(slot)).Inc()
	m.deviceBytesWrittenTotal.Add(float64(bytes))
}

// ObserveOperation records the outcome and duration of a manager operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// WriteElided counts a write skipped for a clean record.
func (m *Metrics) WriteElided() {
	if m == nil {
		return
	}
	m.writesElidedTotal.Inc()
}

// CRCFailure counts a checksum mismatch.
func (m *Metrics) CRCFailure() {
	if m == nil {
		return
	}
	m.crcFailuresTotal.Inc()
}

// SetEdition publishes the in-memory edition.
func (m *Metrics) SetEdition(edition uint32) {
	if m == nil {
		return
	}
	m.edition.Set(float64(edition))
}
