package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for a simulation run: event
// throughput, per-flow packet accounting and mobility jumps.
type SimCollector struct {
	gatherer prometheus.Gatherer

	EventsExecuted   prometheus.Counter
	SimTime          prometheus.Gauge
	RunDuration      prometheus.Histogram
	PacketsSent      *prometheus.CounterVec
	BytesSent        *prometheus.CounterVec
	PacketsDelivered *prometheus.CounterVec
	BytesDelivered   *prometheus.CounterVec
	PacketsDropped   *prometheus.CounterVec
	MobilityJumps    *prometheus.CounterVec
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_events_executed_total",
		Help: "Total number of discrete events executed by the driver.",
	}), "sim_events_executed_total")
	if err != nil {
		return nil, err
	}

	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_time_seconds",
		Help: "Current simulation clock in seconds.",
	}), "sim_time_seconds")
	if err != nil {
		return nil, err
	}

	runDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_run_duration_seconds",
		Help:    "Wall-clock duration of complete simulation runs.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}), "sim_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	sent, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_packets_sent_total",
		Help: "Packets emitted by traffic sources, labeled by flow.",
	}, []string{"flow"}), "sim_packets_sent_total")
	if err != nil {
		return nil, err
	}
	sentBytes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_bytes_sent_total",
		Help: "Bytes emitted by traffic sources, labeled by flow.",
	}, []string{"flow"}), "sim_bytes_sent_total")
	if err != nil {
		return nil, err
	}
	delivered, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_packets_delivered_total",
		Help: "Packets accepted by a sink, labeled by flow.",
	}, []string{"flow"}), "sim_packets_delivered_total")
	if err != nil {
		return nil, err
	}
	deliveredBytes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_bytes_delivered_total",
		Help: "Bytes accepted by a sink, labeled by flow.",
	}, []string{"flow"}), "sim_bytes_delivered_total")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_packets_dropped_total",
		Help: "Packets lost in the channel, labeled by flow and drop reason.",
	}, []string{"flow", "reason"}), "sim_packets_dropped_total")
	if err != nil {
		return nil, err
	}
	jumps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_mobility_jumps_total",
		Help: "Scheduled position changes applied, labeled by node.",
	}, []string{"node"}), "sim_mobility_jumps_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		EventsExecuted:   events,
		SimTime:          simTime,
		RunDuration:      runDuration,
		PacketsSent:      sent,
		BytesSent:        sentBytes,
		PacketsDelivered: delivered,
		BytesDelivered:   deliveredBytes,
		PacketsDropped:   dropped,
		MobilityJumps:    jumps,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveEvent counts one executed event and moves the clock gauge.
func (c *SimCollector) ObserveEvent(simTime float64) {
	if c == nil {
		return
	}
	c.EventsExecuted.Inc()
	c.SimTime.Set(simTime)
}

// ObservePacketSent records one packet emitted by a flow.
func (c *SimCollector) ObservePacketSent(flowID string, size int) {
	if c == nil {
		return
	}
	c.PacketsSent.WithLabelValues(flowID).Inc()
	c.BytesSent.WithLabelValues(flowID).Add(float64(size))
}

// ObservePacketDelivered records one packet accepted by a sink.
func (c *SimCollector) ObservePacketDelivered(flowID string, size int) {
	if c == nil {
		return
	}
	c.PacketsDelivered.WithLabelValues(flowID).Inc()
	c.BytesDelivered.WithLabelValues(flowID).Add(float64(size))
}

// ObservePacketDropped records one packet lost in the channel.
func (c *SimCollector) ObservePacketDropped(flowID, reason string) {
	if c == nil {
		return
	}
	c.PacketsDropped.WithLabelValues(flowID, reason).Inc()
}

// ObserveMobility records a position jump of node.
func (c *SimCollector) ObserveMobility(node int) {
	if c == nil {
		return
	}
	c.MobilityJumps.WithLabelValues(strconv.Itoa(node)).Inc()
}

// ObserveRun records the wall-clock duration of a finished run.
func (c *SimCollector) ObserveRun(d time.Duration) {
	if c == nil {
		return
	}
	c.RunDuration.Observe(d.Seconds())
}
