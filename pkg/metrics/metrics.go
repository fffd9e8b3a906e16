// Package metrics holds the station's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "station",
			Subsystem: "control",
			Name:      "ticks_total",
			Help:      "Control loop ticks.",
		},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "station",
			Subsystem: "control",
			Name:      "frames_sent_total",
			Help:      "Command frames handed to the channel.",
		},
		[]string{"command"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "station",
			Subsystem: "control",
			Name:      "frames_dropped_total",
			Help:      "Command frames not sent, by reason.",
		},
		[]string{"command", "reason"},
	)
	telemetryFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "station",
			Subsystem: "telemetry",
			Name:      "frames_total",
			Help:      "Inbound telemetry frames by decode result.",
		},
		[]string{"result"},
	)
	sinkPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "station",
			Subsystem: "telemetry",
			Name:      "sink_publishes_total",
			Help:      "Snapshots delivered to display sinks.",
		},
		[]string{"sink", "success"},
	)
	channelOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "station",
			Subsystem: "channel",
			Name:      "open",
			Help:      "1 while the rover channel is open.",
		},
	)
)

// RegisterMetrics registers every collector with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ticks, framesSent, framesDropped, telemetryFrames, sinkPublishes, channelOpen)
	})
}

func RecordTick() {
	ticks.Inc()
}

func RecordFrameSent(command string) {
	framesSent.WithLabelValues(command).Inc()
}

func RecordFrameDropped(command, reason string) {
	framesDropped.WithLabelValues(command, reason).Inc()
}

func RecordTelemetry(ok bool) {
	result := "ok"
	if !ok {
		result = "malformed"
	}
	telemetryFrames.WithLabelValues(result).Inc()
}

func RecordSinkPublish(sink string, success bool) {
	label := "true"
	if !success {
		label = "false"
	}
	sinkPublishes.WithLabelValues(sink, label).Inc()
}

func SetChannelOpen(open bool) {
	if open {
		channelOpen.Set(1)
		return
	}
	channelOpen.Set(0)
}
