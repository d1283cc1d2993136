package echo

import (
	"errors"
	"math"
	"net/netip"

	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
)

// Server replies to every packet that arrives at its port with a packet of
// the same size and payload.
type Server struct {
	name      string
	engine    sim.Engine
	transport Transport
	node      *network.Node
	port      uint16

	startTime sim.VTimeInSec
	stopTime  sim.VTimeInSec

	received int
	replied  int
	dropped  int
}

// Name returns the name of the server.
func (s *Server) Name() string {
	return s.name
}

// Node returns the node that the server runs on.
func (s *Server) Node() *network.Node {
	return s.node
}

// Port returns the port that the server listens on.
func (s *Server) Port() uint16 {
	return s.port
}

// NumReceived returns how many requests the server has received.
func (s *Server) NumReceived() int {
	return s.received
}

// NumReplied returns how many replies the server has sent.
func (s *Server) NumReplied() int {
	return s.replied
}

// NumDropped returns how many replies could not be queued.
func (s *Server) NumDropped() int {
	return s.dropped
}

// Install schedules the server to start and to stop.
func (s *Server) Install() error {
	_, err := s.engine.Schedule(s.startTime, s.name+".Start", func() error {
		s.transport.Bind(s.node, netip.IPv4Unspecified(), s.port, s.handle)
		return nil
	})
	if err != nil {
		return err
	}

	if math.IsInf(float64(s.stopTime), 1) {
		return nil
	}

	_, err = s.engine.Schedule(s.stopTime, s.name+".Stop", func() error {
		s.transport.Unbind(s.node, netip.IPv4Unspecified(), s.port)
		return nil
	})

	return err
}

func (s *Server) handle(_ *network.Device, pkt *network.Packet) error {
	s.received++

	reply := network.MakePacketBuilder().
		WithPayload(pkt.Payload).
		WithSize(pkt.Size).
		WithSrc(pkt.Dst, s.port).
		WithDst(pkt.Src, pkt.SrcPort).
		Build()

	err := s.transport.Send(s.node, reply)
	if errors.Is(err, network.ErrQueueFull) {
		s.dropped++
		return nil
	}

	if err != nil {
		return err
	}

	s.replied++

	return nil
}

// ServerBuilder can build echo servers.
type ServerBuilder struct {
	engine    sim.Engine
	transport Transport
	node      *network.Node
	port      uint16
	startTime sim.VTimeInSec
	stopTime  sim.VTimeInSec
}

// MakeServerBuilder creates a ServerBuilder with default parameters.
func MakeServerBuilder() ServerBuilder {
	return ServerBuilder{
		port:     DefaultPort,
		stopTime: sim.VTimeInSec(math.Inf(1)),
	}
}

// WithEngine sets the engine that the server schedules events on.
func (b ServerBuilder) WithEngine(e sim.Engine) ServerBuilder {
	b.engine = e
	return b
}

// WithTransport sets the network stack that the server uses.
func (b ServerBuilder) WithTransport(t Transport) ServerBuilder {
	b.transport = t
	return b
}

// WithNode sets the node that the server runs on.
func (b ServerBuilder) WithNode(n *network.Node) ServerBuilder {
	b.node = n
	return b
}

// WithPort sets the port that the server listens on.
func (b ServerBuilder) WithPort(port uint16) ServerBuilder {
	b.port = port
	return b
}

// WithStartTime sets when the server starts listening.
func (b ServerBuilder) WithStartTime(t sim.VTimeInSec) ServerBuilder {
	b.startTime = t
	return b
}

// WithStopTime sets when the server stops listening.
func (b ServerBuilder) WithStopTime(t sim.VTimeInSec) ServerBuilder {
	b.stopTime = t
	return b
}

// Build creates a new echo server.
func (b ServerBuilder) Build(name string) *Server {
	sim.NameMustBeValid(name)
	b.mustBeComplete()

	if b.stopTime < b.startTime {
		panic("stop time is earlier than start time")
	}

	return &Server{
		name:      name,
		engine:    b.engine,
		transport: b.transport,
		node:      b.node,
		port:      b.port,
		startTime: b.startTime,
		stopTime:  b.stopTime,
	}
}

func (b ServerBuilder) mustBeComplete() {
	if b.engine == nil {
		panic("engine is not given")
	}

	if b.transport == nil {
		panic("transport is not given")
	}

	if b.node == nil {
		panic("node is not given")
	}
}
