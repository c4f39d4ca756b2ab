// Package metrics provides Prometheus metrics for the color stream.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	DropNoTimestamp  = "no_timestamp"
	DropNotStreaming = "not_streaming"
)

var (
	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "colorcam",
		Subsystem: "stream",
		Name:      "frames_delivered_total",
		Help:      "Frames handed to the application callback",
	}, []string{"format", "result"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "colorcam",
		Subsystem: "stream",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded before reaching the application",
	}, []string{"reason"})

	metadataTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "colorcam",
		Subsystem: "stream",
		Name:      "metadata_truncated_total",
		Help:      "Frames whose metadata walk stopped on a malformed item",
	})

	decodeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "colorcam",
		Subsystem: "stream",
		Name:      "decode_seconds",
		Help:      "Time spent decoding MJPEG frames to BGRA",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	streaming = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "colorcam",
		Subsystem: "stream",
		Name:      "active",
		Help:      "1 while the color stream is running",
	})
)

// FrameDelivered counts a callback invocation; result is "ok" or an error kind.
func FrameDelivered(format, result string) {
	framesDelivered.WithLabelValues(format, result).Inc()
}

func FrameDropped(reason string) {
	framesDropped.WithLabelValues(reason).Inc()
}

func MetadataTruncated() {
	metadataTruncated.Inc()
}

func ObserveDecode(seconds float64) {
	decodeSeconds.Observe(seconds)
}

func SetStreaming(on bool) {
	if on {
		streaming.Set(1)
		return
	}
	streaming.Set(0)
}

// RegisterAllocator exposes outstanding allocator bytes as a gauge.
func RegisterAllocator(reg prometheus.Registerer, outstanding func() int64) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "colorcam",
		Subsystem: "allocator",
		Name:      "outstanding_bytes",
		Help:      "Bytes held by frame buffers not yet released",
	}, func() float64 { return float64(outstanding()) }))
}
