// ABOUTME: Prometheus collectors for the layercast server and player
// ABOUTME: Counters are labeled by transport layer; decoder stats are read on scrape
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

const namespace = "layercast"

var layerLabels = []string{"layer"}

// ServerMetrics tracks what the server sends and to whom
type ServerMetrics struct {
	packets      *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	quality      prometheus.Gauge
	layers       prometheus.Gauge
	receivers    prometheus.Gauge
	reportedLoss *prometheus.GaugeVec
	sendErrors   prometheus.Counter
}

// NewServerMetrics registers the server collectors with reg
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packet",
			Name:      "sent_total",
			Help:      "RTP packets sent, per transport layer.",
		}, layerLabels),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packet",
			Name:      "sent_bytes",
			Help:      "RTP bytes sent, per transport layer.",
		}, layerLabels),
		quality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "quality_level",
			Help:      "Ladder level selected for the current frame.",
		}),
		layers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "layers",
			Help:      "Transport layers in use.",
		}),
		receivers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "receivers",
			Help:      "Receivers with a live RTCP session.",
		}),
		reportedLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "reported_loss_ratio",
			Help:      "Worst fraction lost reported by any receiver, per layer.",
		}, layerLabels),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packet",
			Name:      "send_errors_total",
			Help:      "Failed UDP writes.",
		}),
	}
	reg.MustRegister(m.packets, m.bytes, m.quality, m.layers, m.receivers, m.reportedLoss, m.sendErrors)
	return m
}

func layerLabel(layer int) string { return strconv.Itoa(layer) }

// PacketSent counts one packet of n bytes on a layer
func (m *ServerMetrics) PacketSent(layer, n int) {
	l := layerLabel(layer)
	m.packets.WithLabelValues(l).Inc()
	m.bytes.WithLabelValues(l).Add(float64(n))
}

func (m *ServerMetrics) SendFailed() { m.sendErrors.Inc() }

// SetQuality records the encoder's current level and layer count
func (m *ServerMetrics) SetQuality(q audio.Quality, layers int) {
	m.quality.Set(float64(q.Level()))
	m.layers.Set(float64(layers))
}

func (m *ServerMetrics) SetReceivers(n int) { m.receivers.Set(float64(n)) }

// SetReportedLoss records a loss ratio in [0,1] for a layer
func (m *ServerMetrics) SetReportedLoss(layer int, ratio float64) {
	m.reportedLoss.WithLabelValues(layerLabel(layer)).Set(ratio)
}

// StatsFunc returns a decoder stats snapshot
type StatsFunc func() layered.DecoderStats

// RegisterDecoderStats exposes decoder counters, read from stats at scrape time
func RegisterDecoderStats(reg prometheus.Registerer, stats StatsFunc) {
	counter := func(name, help string, value func(layered.DecoderStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(stats())) })
	}
	reg.MustRegister(
		counter("received_total", "Packets seen by the decoder.", func(s layered.DecoderStats) uint64 { return s.Received }),
		counter("accepted_total", "Packets admitted to the frame set.", func(s layered.DecoderStats) uint64 { return s.Accepted }),
		counter("dropped_total", "Packets rejected by sequence validation.", func(s layered.DecoderStats) uint64 { return s.Dropped }),
		counter("malformed_total", "Packets that failed to parse.", func(s layered.DecoderStats) uint64 { return s.Malformed }),
		counter("duplicates_total", "Duplicate packets or fragments.", func(s layered.DecoderStats) uint64 { return s.Duplicates }),
		counter("late_total", "Packets for positions already played.", func(s layered.DecoderStats) uint64 { return s.Late }),
		counter("rendered_total", "Frames handed to the sink.", func(s layered.DecoderStats) uint64 { return s.Rendered }),
		counter("repaired_total", "Plane slices filled from another plane.", func(s layered.DecoderStats) uint64 { return s.Repaired }),
		counter("flushes_total", "Frame set flushes after a position jump.", func(s layered.DecoderStats) uint64 { return s.Flushes }),
		counter("aborted_total", "Frames cut short for exceeding the maximum size.", func(s layered.DecoderStats) uint64 { return s.Aborted }),
	)
}
