// pkg/dxlink/metrics.go
package dxlink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionMetrics = struct {
	Connects	*prometheus.CounterVec
	Messages	*prometheus.CounterVec
	Events		*prometheus.CounterVec
	DecodeSkips	prometheus.Counter
	Keepalives	prometheus.Counter
	Subscribed	prometheus.Gauge
	Disconnects	prometheus.Counter
	Errors		prometheus.Counter
}{
	Connects: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "dxlink", Name: "connects_total",
		Help: "Connection attempts by outcome",
	}, []string{"status"}),
	Messages: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "dxlink", Name: "messages_total",
		Help: "Inbound control messages by type",
	}, []string{"type"}),
	Events: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "dxlink", Name: "events_decoded_total",
		Help: "Decoded market events by kind",
	}, []string{"kind"}),
	DecodeSkips: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "dxlink", Name: "decode_skips_total",
		Help: "Feed records skipped because they could not be decoded",
	}),
	Keepalives: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "dxlink", Name: "keepalives_sent_total",
		Help: "Keepalive messages sent",
	}),
	Subscribed: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamer", Subsystem: "dxlink", Name: "subscribed_symbols",
		Help: "Symbols currently subscribed",
	}),
	Disconnects: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "dxlink", Name: "disconnects_total",
		Help: "Terminal session transitions",
	}),
	Errors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "dxlink", Name: "errors_total",
		Help: "Errors delivered through the error callback",
	}),
}

func incConnect(status string) { sessionMetrics.Connects.WithLabelValues(status).Inc() }

func incMessage(msgType string) { sessionMetrics.Messages.WithLabelValues(msgType).Inc() }

func incEventDecoded(kind string) { sessionMetrics.Events.WithLabelValues(kind).Inc() }

func incDecodeSkip() { sessionMetrics.DecodeSkips.Inc() }

func incKeepalive() { sessionMetrics.Keepalives.Inc() }

func setSubscribedSymbols(n int) { sessionMetrics.Subscribed.Set(float64(n)) }

func incDisconnect() { sessionMetrics.Disconnects.Inc() }

func incErrorEmitted() { sessionMetrics.Errors.Inc() }
