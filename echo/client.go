package echo

import (
	"encoding/binary"
	"errors"
	"math"
	"net/netip"

	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
)

// seqLen is the number of payload bytes that carry the sequence number.
const seqLen = 4

// Client sends a fixed number of packets to an echo server and measures the
// round-trip time of the replies.
type Client struct {
	name      string
	engine    sim.Engine
	transport Transport
	node      *network.Node

	remote     netip.Addr
	remotePort uint16
	localPort  uint16

	maxPackets int
	interval   sim.VTimeInSec
	packetSize int

	startTime sim.VTimeInSec
	stopTime  sim.VTimeInSec

	sendEvt   *sim.Event
	sent      int
	dropped   int
	sendTimes map[uint32]sim.VTimeInSec
	rtts      []sim.VTimeInSec
}

// Name returns the name of the client.
func (c *Client) Name() string {
	return c.name
}

// Node returns the node that the client runs on.
func (c *Client) Node() *network.Node {
	return c.node
}

// NumSent returns how many requests have been handed to the network.
func (c *Client) NumSent() int {
	return c.sent
}

// NumReceived returns how many replies have arrived.
func (c *Client) NumReceived() int {
	return len(c.rtts)
}

// NumDropped returns how many requests could not be queued.
func (c *Client) NumDropped() int {
	return c.dropped
}

// RoundTripTimes returns the round-trip time of every reply, in arriving
// order.
func (c *Client) RoundTripTimes() []sim.VTimeInSec {
	rtts := make([]sim.VTimeInSec, len(c.rtts))
	copy(rtts, c.rtts)
	return rtts
}

// Install schedules the client to start and to stop.
func (c *Client) Install() error {
	_, err := c.engine.Schedule(c.startTime, c.name+".Start", c.start)
	if err != nil {
		return err
	}

	if math.IsInf(float64(c.stopTime), 1) {
		return nil
	}

	_, err = c.engine.Schedule(c.stopTime, c.name+".Stop", c.stop)

	return err
}

func (c *Client) start() error {
	c.transport.Bind(c.node, netip.IPv4Unspecified(), c.localPort, c.handleReply)
	return c.send()
}

func (c *Client) stop() error {
	c.engine.Cancel(c.sendEvt)
	c.sendEvt = nil
	c.transport.Unbind(c.node, netip.IPv4Unspecified(), c.localPort)

	return nil
}

func (c *Client) send() error {
	c.sendEvt = nil

	seq := uint32(c.sent + c.dropped)
	payload := make([]byte, seqLen)
	binary.BigEndian.PutUint32(payload, seq)

	pkt := network.MakePacketBuilder().
		WithPayload(payload).
		WithSize(c.packetSize).
		WithSrc(netip.Addr{}, c.localPort).
		WithDst(c.remote, c.remotePort).
		Build()

	err := c.transport.Send(c.node, pkt)
	switch {
	case errors.Is(err, network.ErrQueueFull):
		c.dropped++
	case err != nil:
		return err
	default:
		c.sent++
		c.sendTimes[seq] = c.engine.CurrentTime()
	}

	if c.sent+c.dropped >= c.maxPackets {
		return nil
	}

	evt, err := c.engine.ScheduleAfter(c.interval, c.name+".Send", c.send)
	if err != nil {
		return err
	}

	c.sendEvt = evt

	return nil
}

func (c *Client) handleReply(_ *network.Device, pkt *network.Packet) error {
	if len(pkt.Payload) < seqLen {
		return nil
	}

	seq := binary.BigEndian.Uint32(pkt.Payload)

	sentAt, ok := c.sendTimes[seq]
	if !ok {
		return nil
	}

	delete(c.sendTimes, seq)
	c.rtts = append(c.rtts, c.engine.CurrentTime()-sentAt)

	return nil
}

// ClientBuilder can build echo clients.
type ClientBuilder struct {
	engine     sim.Engine
	transport  Transport
	node       *network.Node
	remote     netip.Addr
	remotePort uint16
	localPort  uint16
	maxPackets int
	interval   sim.VTimeInSec
	packetSize int
	startTime  sim.VTimeInSec
	stopTime   sim.VTimeInSec
}

// MakeClientBuilder creates a ClientBuilder with default parameters.
func MakeClientBuilder() ClientBuilder {
	return ClientBuilder{
		remotePort: DefaultPort,
		localPort:  49153,
		maxPackets: 1,
		interval:   1,
		packetSize: 1024,
		stopTime:   sim.VTimeInSec(math.Inf(1)),
	}
}

// WithEngine sets the engine that the client schedules events on.
func (b ClientBuilder) WithEngine(e sim.Engine) ClientBuilder {
	b.engine = e
	return b
}

// WithTransport sets the network stack that the client uses.
func (b ClientBuilder) WithTransport(t Transport) ClientBuilder {
	b.transport = t
	return b
}

// WithNode sets the node that the client runs on.
func (b ClientBuilder) WithNode(n *network.Node) ClientBuilder {
	b.node = n
	return b
}

// WithRemote sets the address and port of the server.
func (b ClientBuilder) WithRemote(addr netip.Addr, port uint16) ClientBuilder {
	b.remote = addr
	b.remotePort = port
	return b
}

// WithLocalPort sets the port that replies are sent to.
func (b ClientBuilder) WithLocalPort(port uint16) ClientBuilder {
	b.localPort = port
	return b
}

// WithMaxPackets sets the number of requests to send.
func (b ClientBuilder) WithMaxPackets(n int) ClientBuilder {
	b.maxPackets = n
	return b
}

// WithInterval sets the time between two requests.
func (b ClientBuilder) WithInterval(t sim.VTimeInSec) ClientBuilder {
	b.interval = t
	return b
}

// WithPacketSize sets the size of every request, in bytes.
func (b ClientBuilder) WithPacketSize(size int) ClientBuilder {
	b.packetSize = size
	return b
}

// WithStartTime sets when the client sends its first request.
func (b ClientBuilder) WithStartTime(t sim.VTimeInSec) ClientBuilder {
	b.startTime = t
	return b
}

// WithStopTime sets when the client stops sending and receiving.
func (b ClientBuilder) WithStopTime(t sim.VTimeInSec) ClientBuilder {
	b.stopTime = t
	return b
}

// Build creates a new echo client.
func (b ClientBuilder) Build(name string) *Client {
	sim.NameMustBeValid(name)
	b.mustBeComplete()

	if b.maxPackets <= 0 {
		panic("max packets must be positive")
	}

	if b.interval <= 0 {
		panic("interval must be positive")
	}

	if b.packetSize < 0 {
		panic("packet size must not be negative")
	}

	if b.stopTime < b.startTime {
		panic("stop time is earlier than start time")
	}

	return &Client{
		name:       name,
		engine:     b.engine,
		transport:  b.transport,
		node:       b.node,
		remote:     b.remote,
		remotePort: b.remotePort,
		localPort:  b.localPort,
		maxPackets: b.maxPackets,
		interval:   b.interval,
		packetSize: b.packetSize,
		startTime:  b.startTime,
		stopTime:   b.stopTime,
		sendTimes:  make(map[uint32]sim.VTimeInSec),
	}
}

func (b ClientBuilder) mustBeComplete() {
	if b.engine == nil {
		panic("engine is not given")
	}

	if b.transport == nil {
		panic("transport is not given")
	}

	if b.node == nil {
		panic("node is not given")
	}

	if !b.remote.IsValid() {
		panic("remote address is not given")
	}
}
