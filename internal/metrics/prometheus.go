// Package metrics adapts hound.Observer to Prometheus collectors, grounded
// in the gauge/counter wiring bblfshd's driver pool uses to expose live
// pool occupancy: https://github.com/bblfsh/bblfshd daemon/pool.go.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver records hound's production/delivery/drop events as
// Prometheus counters and a queue-depth gauge, all labeled by device id.
type PrometheusObserver struct {
	produced  *prometheus.CounterVec
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	queueLen  *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
}

// NewPrometheusObserver creates collectors under the given namespace and
// registers them with reg.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) *PrometheusObserver {
	o := &PrometheusObserver{
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_produced_total",
			Help:      "Records produced by a driver instance.",
		}, []string{"device_id", "data_id"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_delivered_total",
			Help:      "Records delivered to a subscribed context.",
		}, []string{"device_id", "data_id"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records evicted from a full context queue (drop-oldest).",
		}, []string{"device_id", "data_id"}),
		queueLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current depth of a context queue.",
		}, []string{"device_id"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "callback_latency_seconds",
			Help:      "Time spent inside a context's delivery callback.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 8),
		}, []string{"device_id", "data_id"}),
	}
	reg.MustRegister(o.produced, o.delivered, o.dropped, o.queueLen, o.latency)
	return o
}

func devLabel(devID uint8) string  { return strconv.Itoa(int(devID)) }
func dataLabel(dataID uint32) string { return strconv.Itoa(int(dataID)) }

func (o *PrometheusObserver) ObserveProduced(devID uint8, dataID uint32, bytes uint64, success bool) {
	if success {
		o.produced.WithLabelValues(devLabel(devID), dataLabel(dataID)).Inc()
	}
}

func (o *PrometheusObserver) ObserveDelivered(devID uint8, dataID uint32, latencyNs uint64) {
	o.delivered.WithLabelValues(devLabel(devID), dataLabel(dataID)).Inc()
	o.latency.WithLabelValues(devLabel(devID), dataLabel(dataID)).Observe(float64(latencyNs) / 1e9)
}

func (o *PrometheusObserver) ObserveDropped(devID uint8, dataID uint32) {
	o.dropped.WithLabelValues(devLabel(devID), dataLabel(dataID)).Inc()
}

func (o *PrometheusObserver) ObserveQueueDepth(devID uint8, depth uint32) {
	o.queueLen.WithLabelValues(devLabel(devID)).Set(float64(depth))
}
