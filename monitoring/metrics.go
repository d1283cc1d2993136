package monitoring

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
)

// Metrics is a hook that exposes the progress of a simulation as Prometheus
// metrics. It can be attached to the engine, the channels, the devices, and
// the nodes. A nil *Metrics ignores all the calls.
type Metrics struct {
	gatherer prometheus.Gatherer

	EventsTotal       prometheus.Counter
	VirtualTime       prometheus.Gauge
	FramesTransmitted *prometheus.CounterVec
	FramesDelivered   *prometheus.CounterVec
	Collisions        *prometheus.CounterVec
	Backoffs          prometheus.Counter
	PacketsReceived   prometheus.Counter
	PacketsDropped    *prometheus.CounterVec
	PacketLatency     prometheus.Histogram
}

// NewMetrics registers the simulation metrics against the provided
// registerer. The default registerer is used when reg is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}

	m.EventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netsim_events_total",
		Help: "Number of events triggered by the engine.",
	})
	m.VirtualTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netsim_virtual_time_seconds",
		Help: "Current virtual time of the simulation.",
	})
	m.FramesTransmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_frames_transmitted_total",
		Help: "Number of frames that started to occupy a channel.",
	}, []string{"channel"})
	m.FramesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_frames_delivered_total",
		Help: "Number of frames that arrived at a device.",
	}, []string{"channel"})
	m.Collisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_collisions_total",
		Help: "Number of frames destroyed by collisions.",
	}, []string{"channel"})
	m.Backoffs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netsim_backoffs_total",
		Help: "Number of transmissions deferred by a backoff.",
	})
	m.PacketsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netsim_packets_received_total",
		Help: "Number of packets handed to nodes.",
	})
	m.PacketsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_packets_dropped_total",
		Help: "Number of packets dropped by devices and nodes.",
	}, []string{"reason"})
	m.PacketLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "netsim_packet_latency_seconds",
		Help: "Virtual time from packet creation to arrival at a node.",
		Buckets: []float64{
			1e-6, 1e-5, 1e-4, 5e-4, 1e-3, 2e-3, 5e-3, 1e-2, 2e-2, 5e-2, 1e-1, 1,
		},
	})

	collectors := []prometheus.Collector{
		m.EventsTotal, m.VirtualTime,
		m.FramesTransmitted, m.FramesDelivered, m.Collisions,
		m.Backoffs, m.PacketsReceived, m.PacketsDropped, m.PacketLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering simulation metrics: %w", err)
		}
	}

	return m, nil
}

// Gatherer returns the Prometheus gatherer associated with the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}

	return m.gatherer
}

// Handler returns an HTTP handler that exposes the metrics.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}

	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Func updates the metrics according to the hook position.
func (m *Metrics) Func(ctx sim.HookCtx) {
	if m == nil {
		return
	}

	switch ctx.Pos {
	case sim.HookPosAfterEvent:
		m.EventsTotal.Inc()
		m.VirtualTime.Set(float64(ctx.Now))
	case network.HookPosTxStart:
		m.FramesTransmitted.WithLabelValues(domainName(ctx)).Inc()
	case network.HookPosDeliver:
		m.FramesDelivered.WithLabelValues(domainName(ctx)).Inc()
	case network.HookPosCollision:
		m.Collisions.WithLabelValues(domainName(ctx)).Inc()
	case network.HookPosDeviceBackoff:
		m.Backoffs.Inc()
	case network.HookPosDeviceDrop, network.HookPosNodeDrop:
		reason, _ := ctx.Detail.(network.DropReason)
		m.PacketsDropped.WithLabelValues(string(reason)).Inc()
	case network.HookPosNodeRecv:
		m.PacketsReceived.Inc()
		if pkt, ok := ctx.Item.(*network.Packet); ok {
			m.PacketLatency.Observe(float64(ctx.Now - pkt.CreationTime))
		}
	}
}

func domainName(ctx sim.HookCtx) string {
	if named, ok := ctx.Domain.(sim.Named); ok {
		return named.Name()
	}

	return ""
}
