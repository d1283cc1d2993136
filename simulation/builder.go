package simulation

import (
	"io"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/sarchlab/netsim/datarecording"
	"github.com/sarchlab/netsim/monitoring"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/routing"
	"github.com/sarchlab/netsim/sim"
	"github.com/sarchlab/netsim/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	parallelIDs    bool
	monitorOn      bool
	monitorPort    int
	recordingOn    bool
	tracingOn      bool
	outputFileName string
	packetLog      io.Writer
	eventLog       io.Writer
	registerer     prometheus.Registerer
	seed           uint64
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		monitorOn:   true,
		recordingOn: true,
		seed:        network.DefaultSeed,
	}
}

// WithSeed sets the seed of the random streams of all the nodes. Runs with
// the same seed and the same network draw the same random numbers.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	return b
}

// WithParallelIDGenerator makes the engine generate globally unique IDs
// instead of sequential ones.
func (b Builder) WithParallelIDGenerator() Builder {
	b.parallelIDs = true
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithoutRecording disables the data recorder and the tracer.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithTracing starts tracing packets from the beginning of the simulation.
// Otherwise, tracing can be started from the monitor.
func (b Builder) WithTracing() Builder {
	b.tracingOn = true
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithPacketLog writes one line for each packet event into w.
func (b Builder) WithPacketLog(w io.Writer) Builder {
	b.packetLog = w
	return b
}

// WithEventLog writes one line for each triggered event into w.
func (b Builder) WithEventLog(w io.Writer) Builder {
	b.eventLog = w
	return b
}

// WithMetricsRegisterer sets where the simulation metrics are registered. By
// default, each simulation has its own registry.
func (b Builder) WithMetricsRegisterer(reg prometheus.Registerer) Builder {
	b.registerer = reg
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordingOn && b.tracingOn {
		panic("tracing cannot be enabled when recording is disabled")
	}

	if !b.recordingOn && b.outputFileName != "" {
		panic("output file cannot be set when recording is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		id:               xid.New().String(),
		seed:             b.seed,
		nodeNameIndex:    make(map[string]int),
		channelNameIndex: make(map[string]int),
		routers:          make(map[*network.Node]*routing.Router),
		hooked:           make(map[sim.Hookable]bool),
	}

	engine := sim.NewSerialEngine()
	if b.parallelIDs {
		engine.WithIDGenerator(sim.NewParallelIDGenerator())
	}
	s.engine = engine

	b.buildMetrics(s)
	b.buildRecording(s)
	b.buildLoggers(s)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterEngine(s.engine)
		s.monitor.RegisterMetrics(s.metrics)
		if s.tracer != nil {
			s.monitor.RegisterTracer(s.tracer)
		}
		s.monitor.StartServer()
	}

	return s
}

func (b Builder) buildMetrics(s *Simulation) {
	reg := b.registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	metrics, err := monitoring.NewMetrics(reg)
	if err != nil {
		panic(err)
	}

	s.metrics = metrics
	s.engine.AcceptHook(metrics)
	s.hooks = append(s.hooks, metrics)
}

func (b Builder) buildRecording(s *Simulation) {
	if !b.recordingOn {
		return
	}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "netsim_sim_" + s.id
	}
	s.dataRecorder = datarecording.New(outputPath)

	s.tracer = tracing.NewDBTracer(s.dataRecorder)
	if b.tracingOn {
		s.tracer.EnableTracing()
	}
	s.hooks = append(s.hooks, s.tracer)
}

func (b Builder) buildLoggers(s *Simulation) {
	if b.eventLog != nil {
		s.engine.AcceptHook(sim.NewEventLogger(log.New(b.eventLog, "", 0)))
	}

	if b.packetLog != nil {
		s.hooks = append(s.hooks,
			network.NewPacketLogger(log.New(b.packetLog, "", 0)))
	}
}
