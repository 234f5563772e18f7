package hound

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the callback-latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks production, fan-out and delivery statistics for a hound
// instance. All fields are safe for concurrent use from the I/O loop and
// from any number of Context consumers.
type Metrics struct {
	// Production counters, incremented once per record the I/O loop emits.
	RecordsProduced atomic.Uint64
	BytesProduced   atomic.Uint64
	ProduceErrors   atomic.Uint64

	// Fan-out counters, incremented once per (record, subscribed context)
	// pair.
	RecordsDelivered atomic.Uint64
	RecordsDropped   atomic.Uint64 // drop-oldest evictions across all queues

	// Queue depth statistics, sampled on every Push across every context
	// queue.
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	// Time spent inside a Context's delivery callback, a proxy for
	// consumer-side backpressure.
	TotalCallbackLatencyNs atomic.Uint64
	CallbackCount          atomic.Uint64
	LatencyBuckets         [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordProduced records one record emitted by a driver.
func (m *Metrics) RecordProduced(bytes uint64, success bool) {
	m.RecordsProduced.Add(1)
	if success {
		m.BytesProduced.Add(bytes)
	} else {
		m.ProduceErrors.Add(1)
	}
}

// RecordDelivered records one record handed to a context's callback,
// along with how long that callback took.
func (m *Metrics) RecordDelivered(latencyNs uint64) {
	m.RecordsDelivered.Add(1)
	m.recordLatency(latencyNs)
}

// RecordDropped records one drop-oldest eviction from a context queue.
func (m *Metrics) RecordDropped() {
	m.RecordsDropped.Add(1)
}

// RecordQueueDepth records a context queue's depth after a Push.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalCallbackLatencyNs.Add(latencyNs)
	m.CallbackCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the instance as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics suitable
// for logging or exposing over an API.
type MetricsSnapshot struct {
	RecordsProduced  uint64
	BytesProduced    uint64
	ProduceErrors    uint64
	RecordsDelivered uint64
	RecordsDropped   uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgCallbackLatencyNs uint64
	UptimeNs             uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	ProduceRate float64 // records/sec
	DropRate    float64 // fraction of delivered+dropped that were dropped
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		RecordsProduced:  m.RecordsProduced.Load(),
		BytesProduced:    m.BytesProduced.Load(),
		ProduceErrors:    m.ProduceErrors.Load(),
		RecordsDelivered: m.RecordsDelivered.Load(),
		RecordsDropped:   m.RecordsDropped.Load(),
		MaxQueueDepth:    m.MaxQueueDepth.Load(),
	}

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalCallbackLatencyNs.Load()
	callbackCount := m.CallbackCount.Load()
	if callbackCount > 0 {
		snap.AvgCallbackLatencyNs = totalLatencyNs / callbackCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ProduceRate = float64(snap.RecordsProduced) / uptimeSeconds
	}

	if total := snap.RecordsDelivered + snap.RecordsDropped; total > 0 {
		snap.DropRate = float64(snap.RecordsDropped) / float64(total)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if callbackCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the callback latency at the given
// percentile (0.0-1.0) using linear interpolation between histogram
// buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.CallbackCount.Load()
	if total == 0 {
		return 0
	}

	targetCount := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters. Useful for tests.
func (m *Metrics) Reset() {
	m.RecordsProduced.Store(0)
	m.BytesProduced.Store(0)
	m.ProduceErrors.Store(0)
	m.RecordsDelivered.Store(0)
	m.RecordsDropped.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalCallbackLatencyNs.Store(0)
	m.CallbackCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable collection of hound's runtime behavior. New
// uses a MetricsObserver over the engine's built-in Metrics when given a
// nil Observer; callers may pass a NoOpObserver or a PrometheusObserver
// (see internal/metrics) instead.
type Observer interface {
	// ObserveProduced is called once per record a driver emits.
	ObserveProduced(devID uint8, dataID uint32, bytes uint64, success bool)

	// ObserveDelivered receives one record handed to a context's
	// callback, with the time spent inside that callback. The engine does
	// not call it: Context records deliveries directly in the built-in
	// Metrics.
	ObserveDelivered(devID uint8, dataID uint32, latencyNs uint64)

	// ObserveDropped is called once per record a context queue evicts
	// because it was full (drop-oldest).
	ObserveDropped(devID uint8, dataID uint32)

	// ObserveQueueDepth is called after every Push into a context queue
	// with that queue's new depth.
	ObserveQueueDepth(devID uint8, depth uint32)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveProduced(uint8, uint32, uint64, bool) {}
func (NoOpObserver) ObserveDelivered(uint8, uint32, uint64)      {}
func (NoOpObserver) ObserveDropped(uint8, uint32)                {}
func (NoOpObserver) ObserveQueueDepth(uint8, uint32)             {}

// MetricsObserver implements Observer on top of the built-in Metrics type.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveProduced(_ uint8, _ uint32, bytes uint64, success bool) {
	o.metrics.RecordProduced(bytes, success)
}

func (o *MetricsObserver) ObserveDelivered(_ uint8, _ uint32, latencyNs uint64) {
	o.metrics.RecordDelivered(latencyNs)
}

func (o *MetricsObserver) ObserveDropped(uint8, uint32) {
	o.metrics.RecordDropped()
}

func (o *MetricsObserver) ObserveQueueDepth(_ uint8, depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
