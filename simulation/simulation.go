// Package simulation puts an engine, a network, and the supporting services
// (recording, tracing, monitoring, and metrics) together.
package simulation

import (
	"errors"
	"fmt"
	"math"
	"net/netip"

	"github.com/sarchlab/netsim/datarecording"
	"github.com/sarchlab/netsim/monitoring"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/routing"
	"github.com/sarchlab/netsim/sim"
	"github.com/sarchlab/netsim/tracing"
)

// A Simulation owns the engine and every node and channel of a network. It
// also provides the primitives that applications use to interact with the
// network.
type Simulation struct {
	id     string
	seed   uint64
	engine *sim.SerialEngine

	dataRecorder datarecording.DataRecorder
	tracer       *tracing.DBTracer
	monitor      *monitoring.Monitor
	metrics      *monitoring.Metrics

	hooks  []sim.Hook
	hooked map[sim.Hookable]bool

	nodes            []*network.Node
	nodeNameIndex    map[string]int
	channels         []network.Channel
	channelNameIndex map[string]int
	routers          map[*network.Node]*routing.Router

	nodesRecorded bool
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Engine returns the engine used in the simulation.
func (s *Simulation) Engine() *sim.SerialEngine {
	return s.engine
}

// DataRecorder returns the data recorder used in the simulation. It returns
// nil if recording is disabled.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Tracer returns the tracer used in the simulation. It returns nil if
// recording is disabled.
func (s *Simulation) Tracer() *tracing.DBTracer {
	return s.tracer
}

// Monitor returns the monitor used in the simulation. It returns nil if
// monitoring is disabled.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Metrics returns the Prometheus metrics of the simulation.
func (s *Simulation) Metrics() *monitoring.Metrics {
	return s.metrics
}

// CreateNode creates a node and registers it with the simulation. Node IDs
// follow the creation order.
func (s *Simulation) CreateNode(name string) *network.Node {
	if _, found := s.nodeNameIndex[name]; found {
		panic("node " + name + " already registered")
	}

	n := network.NewNode(len(s.nodes), name, s.engine)
	n.SetSeed(s.seed)

	s.nodes = append(s.nodes, n)
	s.nodeNameIndex[name] = len(s.nodes) - 1

	if s.monitor != nil {
		s.monitor.RegisterNode(n)
	}

	return n
}

// Nodes returns all the nodes in the order of creation.
func (s *Simulation) Nodes() []*network.Node {
	return append([]*network.Node(nil), s.nodes...)
}

// GetNodeByName returns the node with the given name, or nil if there is no
// such node.
func (s *Simulation) GetNodeByName(name string) *network.Node {
	i, found := s.nodeNameIndex[name]
	if !found {
		return nil
	}

	return s.nodes[i]
}

// RegisterChannel registers a channel with the simulation.
func (s *Simulation) RegisterChannel(c network.Channel) {
	name := c.Name()
	if _, found := s.channelNameIndex[name]; found {
		panic("channel " + name + " already registered")
	}

	s.channels = append(s.channels, c)
	s.channelNameIndex[name] = len(s.channels) - 1

	if s.monitor != nil {
		s.monitor.RegisterChannel(c)
	}
}

// Channels returns all the channels in the order of registration.
func (s *Simulation) Channels() []network.Channel {
	return append([]network.Channel(nil), s.channels...)
}

// GetChannelByName returns the channel with the given name, or nil if there
// is no such channel.
func (s *Simulation) GetChannelByName(name string) network.Channel {
	i, found := s.channelNameIndex[name]
	if !found {
		return nil
	}

	return s.channels[i]
}

// PopulateRoutingTables computes the shortest paths between all the nodes and
// installs a router on every node.
func (s *Simulation) PopulateRoutingTables() {
	for _, r := range routing.PopulateRoutingTables(s.nodes) {
		s.routers[r.Node()] = r
	}
}

// Router returns the router installed on the node, or nil.
func (s *Simulation) Router(n *network.Node) *routing.Router {
	return s.routers[n]
}

// Validate checks the structure of the network. It fails on the first
// malformed channel.
func (s *Simulation) Validate() error {
	for _, c := range s.channels {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// RegisterHandler makes the handler consume the packets that arrive at the
// node for the address.
func (s *Simulation) RegisterHandler(
	node *network.Node,
	addr netip.Addr,
	h network.PacketHandler,
) {
	node.RegisterHandler(addr, h)
}

// Bind makes the handler consume the packets that arrive at the node for the
// address and port.
func (s *Simulation) Bind(
	node *network.Node,
	addr netip.Addr,
	port uint16,
	h network.PacketHandler,
) {
	node.Bind(addr, port, h)
}

// Unbind removes a handler registered with Bind.
func (s *Simulation) Unbind(node *network.Node, addr netip.Addr, port uint16) {
	node.Unbind(addr, port)
}

// Send originates a packet from the node. The router of the node chooses the
// outgoing device. A node without a router can only send through its only
// device.
func (s *Simulation) Send(node *network.Node, pkt *network.Packet) error {
	if r, found := s.routers[node]; found {
		return r.Send(pkt)
	}

	devices := node.Devices()
	if len(devices) != 1 {
		return &routing.NoRouteError{Node: node.Name(), Dst: pkt.Dst}
	}

	return devices[0].Send(pkt, netip.Addr{})
}

// ScheduleSend sends the packet from the node at the given time. If dev is
// nil, the outgoing device is chosen as Send does; otherwise, the packet is
// sent through dev to the link-level destination dst. A packet dropped by a
// full queue does not fail the run.
//
// The packet is copied when the send is scheduled. Scheduling the same packet
// twice sends two packets, each with its own ID, and leaves the given packet
// untouched.
func (s *Simulation) ScheduleSend(
	node *network.Node,
	dev *network.Device,
	pkt *network.Packet,
	dst netip.Addr,
	at sim.VTimeInSec,
) (*sim.Event, error) {
	if dev != nil && dev.Node() != node {
		panic(fmt.Sprintf("device %s does not belong to node %s",
			dev.Name(), node.Name()))
	}

	pkt = pkt.Clone()

	return s.engine.Schedule(at, "Send", func() error {
		var err error
		if dev == nil {
			err = s.Send(node, pkt)
		} else {
			err = dev.Send(pkt, dst)
		}

		if errors.Is(err, network.ErrQueueFull) {
			return nil
		}

		return err
	})
}

// ScheduleStop stops the simulation at the given time.
func (s *Simulation) ScheduleStop(at sim.VTimeInSec) (*sim.Event, error) {
	return s.engine.ScheduleStop(at)
}

// Run validates the network and processes all the events.
func (s *Simulation) Run() error {
	return s.RunUntil(sim.VTimeInSec(math.Inf(1)))
}

// RunUntil validates the network and processes the events scheduled no later
// than the stop time.
func (s *Simulation) RunUntil(stopTime sim.VTimeInSec) error {
	if err := s.Validate(); err != nil {
		return err
	}

	s.attachHooks()
	s.recordNodes()

	if s.monitor != nil && !math.IsInf(float64(stopTime), 1) {
		bar := s.monitor.CreateProgressBar("Virtual time (ms)",
			uint64(stopTime*1000))
		defer s.monitor.CompleteProgressBar(bar)

		progress := &progressHook{bar: bar}
		s.engine.AcceptHook(progress)
		defer progress.detach()
	}

	err := s.engine.RunUntil(stopTime)
	s.engine.Finished()

	return err
}

func (s *Simulation) attachHooks() {
	domains := make([]sim.Hookable, 0)

	for _, c := range s.channels {
		domains = append(domains, c)
	}

	for _, n := range s.nodes {
		domains = append(domains, n)
		for _, d := range n.Devices() {
			domains = append(domains, d)
		}
	}

	for _, d := range domains {
		if s.hooked[d] {
			continue
		}

		for _, h := range s.hooks {
			d.AcceptHook(h)
		}
		s.hooked[d] = true
	}
}

func (s *Simulation) recordNodes() {
	if s.tracer == nil || s.nodesRecorded {
		return
	}

	for _, n := range s.nodes {
		s.tracer.RecordNode(n)
	}
	s.nodesRecorded = true
}

// Terminate stops the monitor and flushes and closes the data recorder.
func (s *Simulation) Terminate() error {
	var errs []error

	if s.monitor != nil {
		errs = append(errs, s.monitor.StopServer())
	}

	if s.tracer != nil {
		s.tracer.Terminate()
	}

	if s.dataRecorder != nil {
		errs = append(errs, s.dataRecorder.Close())
	}

	return errors.Join(errs...)
}

// progressHook moves a progress bar along with the virtual time. The engine
// cannot remove hooks, so a detached hook stays registered but inactive.
type progressHook struct {
	bar      *monitoring.ProgressBar
	detached bool
}

func (h *progressHook) Func(ctx sim.HookCtx) {
	if h.detached || ctx.Pos != sim.HookPosAfterEvent {
		return
	}

	h.bar.AdvanceTo(uint64(ctx.Now * 1000))

	if e, ok := ctx.Domain.(interface{ Pending() int }); ok {
		h.bar.SetInProgress(uint64(e.Pending()))
	}
}

func (h *progressHook) detach() {
	h.detached = true
}
