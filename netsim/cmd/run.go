package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/browser"
	"github.com/sarchlab/netsim/simulation"
	"github.com/sarchlab/netsim/topology"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	Long: "`run --topology [file]` builds the topology described in the " +
		"file and runs it until its stop time. Without a file, the " +
		"built-in city scenario is run.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := readRunOptions(cmd)
		if err != nil {
			return err
		}

		return runSimulation(cmd.Context(), opts, cmd.OutOrStdout(),
			cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.String("topology", "", "Topology description file (YAML or JSON).")
	f.Float64("stop-time", 0, "Override the stop time in seconds.")
	f.Uint64("seed", 0, "Override the seed of the backoff random streams.")
	f.Bool("monitor", false, "Serve the monitoring web page.")
	f.Int("monitor-port", 0, "Port of the monitoring web page.")
	f.Bool("open-browser", false, "Open the monitoring page in a browser.")
	f.Bool("no-recording", false, "Do not write the SQLite database.")
	f.String("output", "", "Name of the SQLite database.")
	f.Bool("trace", false, "Record packet hops in the database.")
	f.Bool("packet-log", false, "Log every packet event to stderr.")
	f.Bool("event-log", false, "Log every executed event to stderr.")
	f.Bool("spans", false, "Export an OpenTelemetry span of the run.")
}

type runOptions struct {
	topology    string
	stopTime    float64
	seed        uint64
	monitor     bool
	monitorPort int
	openBrowser bool
	recording   bool
	output      string
	trace       bool
	packetLog   bool
	eventLog    bool
	spans       bool
}

func readRunOptions(cmd *cobra.Command) (runOptions, error) {
	f := cmd.Flags()
	o := runOptions{}

	o.topology, _ = f.GetString("topology")
	o.stopTime, _ = f.GetFloat64("stop-time")
	o.seed, _ = f.GetUint64("seed")
	o.monitor, _ = f.GetBool("monitor")
	o.monitorPort, _ = f.GetInt("monitor-port")
	o.openBrowser, _ = f.GetBool("open-browser")
	noRecording, _ := f.GetBool("no-recording")
	o.recording = !noRecording
	o.output, _ = f.GetString("output")
	o.trace, _ = f.GetBool("trace")
	o.packetLog, _ = f.GetBool("packet-log")
	o.eventLog, _ = f.GetBool("event-log")
	o.spans, _ = f.GetBool("spans")

	if o.stopTime < 0 {
		return o, fmt.Errorf("negative stop time %g", o.stopTime)
	}

	if !o.monitor && (o.monitorPort != 0 || o.openBrowser) {
		return o, fmt.Errorf("--monitor-port and --open-browser need --monitor")
	}

	if !o.recording && (o.trace || o.output != "") {
		return o, fmt.Errorf("--trace and --output need recording")
	}

	return o, nil
}

func (o runOptions) builder(logs io.Writer) simulation.Builder {
	b := simulation.MakeBuilder()

	if o.monitor {
		if o.monitorPort != 0 {
			b = b.WithMonitorPort(o.monitorPort)
		}
	} else {
		b = b.WithoutMonitoring()
	}

	if o.recording {
		if o.output != "" {
			b = b.WithOutputFileName(o.output)
		}

		if o.trace {
			b = b.WithTracing()
		}
	} else {
		b = b.WithoutRecording()
	}

	if o.packetLog {
		b = b.WithPacketLog(logs)
	}

	if o.eventLog {
		b = b.WithEventLog(logs)
	}

	return b
}

func loadDescription(filename string) (*topology.Description, error) {
	if filename == "" {
		return topology.City(), nil
	}

	return topology.ReadDescription(filename, nil)
}

func runSimulation(
	ctx context.Context,
	opts runOptions,
	out, logs io.Writer,
) (err error) {
	desc, err := loadDescription(opts.topology)
	if err != nil {
		return err
	}

	if opts.stopTime > 0 {
		desc.StopTime = topology.Duration(opts.stopTime)
	}

	if opts.seed != 0 {
		desc.Seed = opts.seed
	}

	shutdown, err := initSpans(ctx, opts.spans, out)
	if err != nil {
		return err
	}
	defer shutdownSpans(shutdown)

	_, span := otel.Tracer(tracerName).Start(ctx, "netsim.run",
		trace.WithAttributes(attribute.String("netsim.topology", desc.Name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s := opts.builder(logs).Build()
	defer func() {
		if termErr := s.Terminate(); termErr != nil && err == nil {
			err = termErr
		}
	}()

	net, err := topology.Build(s, desc)
	if err != nil {
		return err
	}

	if opts.openBrowser {
		if err := browser.OpenURL(s.Monitor().URL()); err != nil {
			slog.Warn("cannot open browser", "error", err)
		}
	}

	slog.Info("simulation started",
		"id", s.ID(),
		"topology", desc.Name,
		"nodes", len(net.Nodes),
		"channels", len(net.Channels),
		"stop_time", float64(net.StopTime))

	err = s.RunUntil(net.StopTime)

	engine := s.Engine()
	span.SetAttributes(
		attribute.Float64("netsim.virtual_time", float64(engine.CurrentTime())),
		attribute.String("netsim.termination", engine.Termination().String()),
		attribute.Int("netsim.pending_events", engine.Pending()),
	)

	if err != nil {
		return err
	}

	slog.Info("simulation finished",
		"termination", engine.Termination().String(),
		"now", float64(engine.CurrentTime()),
		"pending", engine.Pending())

	reportApplications(net)

	return nil
}

func reportApplications(net *topology.Network) {
	for _, server := range net.Servers {
		slog.Info("echo server",
			"name", server.Name(),
			"node", server.Node().Name(),
			"received", server.NumReceived(),
			"replied", server.NumReplied(),
			"dropped", server.NumDropped())
	}

	for _, client := range net.Clients {
		rtts := make([]float64, 0, len(client.RoundTripTimes()))
		for _, rtt := range client.RoundTripTimes() {
			rtts = append(rtts, float64(rtt))
		}

		slog.Info("echo client",
			"name", client.Name(),
			"node", client.Node().Name(),
			"sent", client.NumSent(),
			"received", client.NumReceived(),
			"dropped", client.NumDropped(),
			"rtt", rtts)
	}
}
