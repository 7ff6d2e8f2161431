package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/manet-sim/internal/logging"
	"github.com/signalsfoundry/manet-sim/internal/observability"
	"github.com/signalsfoundry/manet-sim/kb"
	"github.com/signalsfoundry/manet-sim/model"
	"github.com/signalsfoundry/manet-sim/timectrl"
)

// SimulationEngine wires a scenario into a registry, an event queue, a
// mobility controller, a channel and the configured flows and sinks, and
// runs it once.
type SimulationEngine struct {
	KB *kb.KnowledgeBase

	scenario Scenario
	queue    *timectrl.EventQueue
	mobility *MobilityController
	channel  *Channel
	flows    []*Flow
	sinks    []*Sink
	stats    map[string]*FlowStats

	oracle  ReachabilityOracle
	pacer   *timectrl.Pacer
	log     logging.Logger
	metrics MetricsRecorder

	ran    bool
	runCtx context.Context
	runLog logging.Logger
	cancel context.CancelFunc
	fatal  error
}

// Option customises a SimulationEngine.
type Option func(*SimulationEngine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *SimulationEngine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder sends run counters to m.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *SimulationEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithOracle replaces the oracle derived from the scenario.
func WithOracle(o ReachabilityOracle) Option {
	return func(e *SimulationEngine) { e.oracle = o }
}

// WithPacer paces event execution against the wall clock.
func WithPacer(p *timectrl.Pacer) Option {
	return func(e *SimulationEngine) { e.pacer = p }
}

// NewSimulationEngine validates sc and schedules all of its mobility jumps
// and flows. Every configuration problem is reported here; Run only fails
// on context cancellation.
func NewSimulationEngine(sc Scenario, opts ...Option) (*SimulationEngine, error) {
	sc = sc.WithDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	e := &SimulationEngine{
		KB:       kb.NewKnowledgeBase(),
		scenario: sc,
		stats:    make(map[string]*FlowStats, len(sc.Flows)),
		log:      logging.Noop(),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}

	for i, nc := range sc.Nodes {
		id := model.NodeID(i)
		addr, err := sc.Address(id)
		if err != nil {
			return nil, err
		}
		name := nc.Name
		if name == "" {
			name = id.String()
		}
		if err := e.KB.AddNode(model.Node{ID: id, Name: name, Position: nc.Position, Address: addr}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}

	if e.oracle == nil {
		oracle, err := sc.Oracle(e.KB)
		if err != nil {
			return nil, err
		}
		e.oracle = oracle
	}

	qopts := []timectrl.QueueOption{timectrl.WithEventHook(e.metrics.ObserveEvent)}
	if e.pacer != nil {
		qopts = append(qopts, timectrl.WithPacer(e.pacer))
	}
	e.queue = timectrl.NewEventQueue(qopts...)
	e.mobility = NewMobilityController(e.KB, e.queue, e.fail)
	e.channel = NewChannel(e.KB, e.oracle)
	e.channel.Observe(e.onDelivery)

	tracks, err := sc.TrackEvents()
	if err != nil {
		return nil, err
	}
	jumps := make([]model.MobilityEvent, 0, len(sc.Mobility)+len(tracks))
	jumps = append(jumps, sc.Mobility...)
	jumps = append(jumps, tracks...)
	if err := e.mobility.ScheduleAll(jumps); err != nil {
		return nil, err
	}

	for _, spec := range sc.Sinks {
		sink, err := NewSink(spec)
		if err != nil {
			return nil, err
		}
		if err := e.channel.AttachSink(sink); err != nil {
			return nil, err
		}
		e.sinks = append(e.sinks, sink)
	}

	for _, spec := range sc.Flows {
		flow, err := NewFlow(spec)
		if err != nil {
			return nil, err
		}
		src, dst, err := e.channel.Resolve(Packet{FlowID: spec.ID, Source: spec.Source, Destination: spec.Destination})
		if err != nil {
			return nil, err
		}
		if err := flow.Start(e.queue, e.transmit); err != nil {
			return nil, err
		}
		e.flows = append(e.flows, flow)
		e.stats[spec.ID] = &FlowStats{
			FlowID:      spec.ID,
			Source:      src.Address.String(),
			Destination: fmt.Sprintf("%s (%s)", spec.Destination, dst.Name),
		}
	}
	return e, nil
}

// Scenario returns the scenario with defaults applied.
func (e *SimulationEngine) Scenario() Scenario { return e.scenario }

// Now returns the current simulation time.
func (e *SimulationEngine) Now() float64 { return e.queue.Now() }

// Schedule adds a custom action to the run. It must be called before Run
// or from inside another action.
func (e *SimulationEngine) Schedule(at float64, f func()) (timectrl.EventID, error) {
	return e.queue.Schedule(at, f)
}

// Flows returns the configured flows in scenario order.
func (e *SimulationEngine) Flows() []*Flow {
	out := make([]*Flow, len(e.flows))
	copy(out, e.flows)
	return out
}

// Run executes events until the scenario stop time and collects the
// results. On context cancellation it returns the results gathered so
// far together with the context error.
func (e *SimulationEngine) Run(ctx context.Context) (*Results, error) {
	if e.ran {
		return nil, ErrAlreadyRan
	}
	e.ran = true

	ctx, log := logging.WithRunLogger(ctx, e.log)
	ctx, span := observability.StartSpan(ctx, "simulation.run", "scenario", e.scenario.Name,
		attribute.Int("nodes", len(e.scenario.Nodes)),
		attribute.Int("flows", len(e.flows)),
		attribute.Float64("stop_time", e.scenario.StopTime),
	)
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.runCtx, e.runLog, e.cancel = runCtx, log, cancel

	unsubscribe := e.KB.Subscribe(e.onRegistryEvent)
	defer unsubscribe()

	log.Info(ctx, "simulation starting",
		logging.String("scenario", e.scenario.Name),
		logging.Int("nodes", len(e.scenario.Nodes)),
		logging.Int("flows", len(e.flows)),
		logging.Int("sinks", len(e.sinks)),
		logging.Float("stop_time", e.scenario.StopTime),
		logging.String("routing", string(e.scenario.Routing)),
	)

	started := time.Now()
	executed, err := e.queue.Run(runCtx, e.scenario.StopTime)
	e.metrics.ObserveRun(time.Since(started))
	if e.fatal != nil {
		err = e.fatal
	}

	res := e.results(executed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error(ctx, "simulation aborted", logging.SimTime(e.queue.Now()), logging.Err(err))
		return res, err
	}

	span.SetAttributes(
		attribute.Int("events_executed", executed),
		attribute.Int("packets_received", res.TotalPackets()),
	)
	log.Info(ctx, "simulation finished",
		logging.SimTime(e.queue.Now()),
		logging.Int("events", executed),
		logging.Int("packets_received", res.TotalPackets()),
		logging.Int("bytes_received", res.TotalBytes()),
		logging.Any("wall_time", time.Since(started).String()),
	)
	return res, nil
}

// fail aborts the run with err. Only the first failure is kept.
func (e *SimulationEngine) fail(err error) {
	if e.fatal != nil {
		return
	}
	e.fatal = err
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *SimulationEngine) transmit(pkt Packet) {
	e.metrics.ObservePacketSent(pkt.FlowID, pkt.Size)
	if _, err := e.channel.Transmit(e.queue.Now(), pkt); err != nil {
		e.fail(err)
	}
}

func (e *SimulationEngine) onDelivery(d Delivery) {
	if st := e.stats[d.Packet.FlowID]; st != nil {
		st.recordDelivery(d)
	}
	if d.Delivered {
		e.metrics.ObservePacketDelivered(d.Packet.FlowID, d.Packet.Size)
	} else {
		e.metrics.ObservePacketDropped(d.Packet.FlowID, string(d.Reason))
	}

	if e.runLog == nil {
		return
	}
	fields := []logging.Field{
		logging.SimTime(d.At),
		logging.String("flow", d.Packet.FlowID),
		logging.Int("seq", d.Packet.Seq),
		logging.Int("size", d.Packet.Size),
	}
	if d.Delivered {
		e.runLog.Debug(e.runCtx, "packet delivered", fields...)
		return
	}
	e.runLog.Debug(e.runCtx, "packet dropped", append(fields, logging.String("reason", string(d.Reason)))...)
}

func (e *SimulationEngine) onRegistryEvent(ev kb.Event) {
	if ev.Type != kb.EventNodeMoved {
		return
	}
	e.metrics.ObserveMobility(int(ev.Node.ID))
	now := e.queue.Now()

	if e.runCtx != nil {
		trace.SpanFromContext(e.runCtx).AddEvent("node.moved", trace.WithAttributes(
			attribute.Int("node", int(ev.Node.ID)),
			attribute.Float64("sim_time", now),
			attribute.Float64("x", ev.Node.Position.X),
			attribute.Float64("y", ev.Node.Position.Y),
			attribute.Float64("z", ev.Node.Position.Z),
		))
	}
	if e.runLog != nil {
		e.runLog.Info(e.runCtx, "node moved",
			logging.SimTime(now),
			logging.String("node", ev.Node.Name),
			logging.Any("from", ev.Previous),
			logging.Any("to", ev.Node.Position),
		)
	}
}

func (e *SimulationEngine) results(executed int) *Results {
	res := &Results{
		Scenario:       e.scenario.Name,
		StopTime:       e.queue.Now(),
		EventsExecuted: executed,
	}
	for _, s := range e.sinks {
		spec := s.Spec()
		res.Sinks = append(res.Sinks, SinkReport{Node: spec.Node, Port: spec.Port, Records: s.Records()})
	}
	sort.SliceStable(res.Sinks, func(i, j int) bool {
		if res.Sinks[i].Node != res.Sinks[j].Node {
			return res.Sinks[i].Node < res.Sinks[j].Node
		}
		return res.Sinks[i].Port < res.Sinks[j].Port
	})
	for _, f := range e.flows {
		st := *e.stats[f.Spec().ID]
		st.finish(f)
		res.Flows = append(res.Flows, st)
	}
	return res
}
