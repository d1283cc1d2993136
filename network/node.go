package network

import (
	"fmt"
	"log"
	"net/netip"

	"github.com/sarchlab/netsim/sim"
)

// A PacketHandler consumes a packet that arrives at a node. An error returned
// by the handler terminates the simulation run.
type PacketHandler func(dev *Device, pkt *Packet) error

// A DeliveryFailureHandler is notified when a device gives up sending a
// packet.
type DeliveryFailureHandler func(pkt *Packet, err error)

// Position is the location of a node in a plane, in meters.
type Position struct {
	X, Y, Z float64
}

// NodeStats counts the packets that arrive at a node.
type NodeStats struct {
	Received int
	Consumed int
	Dropped  int
}

type endpoint struct {
	addr netip.Addr
	port uint16
}

// A Node is a host or a router. It owns devices and dispatches the packets
// that its devices receive to the handlers registered by applications.
type Node struct {
	sim.HookableBase

	id     int
	name   string
	engine sim.Engine

	devices   []*Device
	addresses map[netip.Addr]*Device

	handlers        map[endpoint]PacketHandler
	defaultHandler  PacketHandler
	failureHandlers []DeliveryFailureHandler

	position Position
	stats    NodeStats
	seed     uint64
}

// NewNode creates a node.
func NewNode(id int, name string, engine sim.Engine) *Node {
	sim.NameMustBeValid(name)

	if engine == nil {
		panic("engine is not given")
	}

	return &Node{
		id:        id,
		name:      name,
		engine:    engine,
		addresses: make(map[netip.Addr]*Device),
		handlers:  make(map[endpoint]PacketHandler),
		seed:      DefaultSeed,
	}
}

// Seed returns the seed of the random streams of the node's devices.
func (n *Node) Seed() uint64 {
	return n.seed
}

// SetSeed changes the seed of the random streams of the node's devices. The
// streams of existing devices restart from the new seed.
func (n *Node) SetSeed(seed uint64) {
	n.seed = seed

	for _, d := range n.devices {
		d.rng = newBackoffStream(seed, d.name)
	}
}

// ID returns the ID of the node.
func (n *Node) ID() int {
	return n.id
}

// Name returns the name of the node.
func (n *Node) Name() string {
	return n.name
}

// Engine returns the engine that the node runs on.
func (n *Node) Engine() sim.Engine {
	return n.engine
}

// Position returns where the node is.
func (n *Node) Position() Position {
	return n.position
}

// SetPosition moves the node.
func (n *Node) SetPosition(p Position) {
	n.position = p
}

// Stats returns the counters of the node.
func (n *Node) Stats() NodeStats {
	return n.stats
}

// CreateDevice adds a device with a default-sized transmit queue to the
// node.
func (n *Node) CreateDevice(name string) *Device {
	return n.CreateDeviceWithQueueSize(name, DefaultQueueSize)
}

// CreateDeviceWithQueueSize adds a device to the node. The transmit queue
// holds at most queueSize packets.
func (n *Node) CreateDeviceWithQueueSize(name string, queueSize int) *Device {
	if queueSize <= 0 {
		panic("queue size must be positive")
	}

	fullName := fmt.Sprintf("%s.%s", n.name, name)
	sim.NameMustBeValid(fullName)

	for _, d := range n.devices {
		if d.name == fullName {
			log.Panicf("device %s already exists", fullName)
		}
	}

	d := &Device{
		name:    fullName,
		node:    n,
		engine:  n.engine,
		txQueue: sim.NewBuffer(fullName+".TxQueue", queueSize),
		rng:     newBackoffStream(n.seed, fullName),
	}
	n.devices = append(n.devices, d)

	return d
}

// Devices returns the devices of the node, in creating order.
func (n *Node) Devices() []*Device {
	devices := make([]*Device, len(n.devices))
	copy(devices, n.devices)
	return devices
}

// Addresses returns the addresses owned by the devices of the node.
func (n *Node) Addresses() []netip.Addr {
	addrs := make([]netip.Addr, 0, len(n.devices))
	for _, d := range n.devices {
		if d.address.IsValid() {
			addrs = append(addrs, d.address)
		}
	}

	return addrs
}

// DeviceByAddress returns the device that owns the address, or nil.
func (n *Node) DeviceByAddress(addr netip.Addr) *Device {
	return n.addresses[addr]
}

// IsLocal tells if a packet sent to the address is meant for the node.
func (n *Node) IsLocal(addr netip.Addr) bool {
	if addr == BroadcastAddress {
		return true
	}

	_, ok := n.addresses[addr]

	return ok
}

func (n *Node) assignAddress(d *Device, addr netip.Addr) {
	if !addr.IsValid() {
		panic("invalid address")
	}

	if owner, ok := n.addresses[addr]; ok && owner != d {
		log.Panicf("address %s is already used by %s", addr, owner.name)
	}

	if d.address.IsValid() {
		delete(n.addresses, d.address)
	}

	d.address = addr
	n.addresses[addr] = d
}

// RegisterHandler makes the handler consume the packets that arrive at the
// node with the given destination address, regardless of the port.
func (n *Node) RegisterHandler(addr netip.Addr, h PacketHandler) {
	n.Bind(addr, 0, h)
}

// Bind makes the handler consume the packets sent to the address and port.
// The unspecified address matches every local address. Port 0 matches every
// port.
func (n *Node) Bind(addr netip.Addr, port uint16, h PacketHandler) {
	if h == nil {
		panic("handler must not be nil")
	}

	n.handlers[endpoint{addr: addr, port: port}] = h
}

// Unbind removes the handler bound to the address and port.
func (n *Node) Unbind(addr netip.Addr, port uint16) {
	delete(n.handlers, endpoint{addr: addr, port: port})
}

// SetDefaultHandler sets the handler of the packets that no other handler
// claims and that are not sent to the node itself. Routers use it to forward
// packets.
func (n *Node) SetDefaultHandler(h PacketHandler) {
	n.defaultHandler = h
}

// OnDeliveryFailure registers a handler that is notified when a device of the
// node drops a packet after exhausting its retries.
func (n *Node) OnDeliveryFailure(h DeliveryFailureHandler) {
	n.failureHandlers = append(n.failureHandlers, h)
}

// Drop discards a packet that arrived at the node.
func (n *Node) Drop(pkt *Packet, reason DropReason) {
	n.stats.Dropped++
	n.hook(HookPosNodeDrop, pkt, reason)
}

func (n *Node) receive(dev *Device, pkt *Packet) error {
	n.stats.Received++
	n.hook(HookPosNodeRecv, pkt, dev)

	if h := n.lookup(pkt); h != nil {
		n.stats.Consumed++
		return h(dev, pkt)
	}

	if n.IsLocal(pkt.Dst) || n.defaultHandler == nil {
		n.Drop(pkt, DropNoHandler)
		return nil
	}

	return n.defaultHandler(dev, pkt)
}

func (n *Node) lookup(pkt *Packet) PacketHandler {
	candidates := []endpoint{
		{addr: pkt.Dst, port: pkt.DstPort},
		{addr: pkt.Dst, port: 0},
	}

	if n.IsLocal(pkt.Dst) {
		wildcard := netip.IPv4Unspecified()
		candidates = append(candidates,
			endpoint{addr: wildcard, port: pkt.DstPort},
			endpoint{addr: wildcard, port: 0},
		)
	}

	for _, c := range candidates {
		if h, ok := n.handlers[c]; ok {
			return h
		}
	}

	return nil
}

func (n *Node) reportDeliveryFailure(pkt *Packet, err error) {
	for _, h := range n.failureHandlers {
		h(pkt, err)
	}
}

func (n *Node) hook(pos *sim.HookPos, item, detail interface{}) {
	if n.NumHooks() == 0 {
		return
	}

	n.InvokeHook(sim.HookCtx{
		Domain: n,
		Now:    n.engine.CurrentTime(),
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}
