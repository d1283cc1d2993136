package network

import (
	"net/netip"

	"github.com/sarchlab/netsim/sim"
)

// BroadcastAddress is the link-level address that every device on a shared
// channel accepts.
var BroadcastAddress = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// DefaultTTL is the hop limit given to packets that do not specify one.
const DefaultTTL = 64

// A Packet is a piece of data that travels across the network. A packet must
// not be modified after it is handed to a device. Forwarding elements create
// modified copies with Clone.
type Packet struct {
	ID           string
	Payload      []byte
	Src, Dst     netip.Addr
	SrcPort      uint16
	DstPort      uint16
	Size         int
	TTL          int
	CreationTime sim.VTimeInSec
}

// Clone returns a shallow copy of the packet. The payload is shared.
func (p *Packet) Clone() *Packet {
	c := *p
	return &c
}

// PacketBuilder can build packets.
type PacketBuilder struct {
	payload          []byte
	size             int
	sizeSet          bool
	src, dst         netip.Addr
	srcPort, dstPort uint16
	ttl              int
}

// MakePacketBuilder creates a PacketBuilder with default values.
func MakePacketBuilder() PacketBuilder {
	return PacketBuilder{
		ttl: DefaultTTL,
	}
}

// WithPayload sets the payload of the packet. Unless a size is given, the
// size of the packet is the length of the payload.
func (b PacketBuilder) WithPayload(payload []byte) PacketBuilder {
	b.payload = payload
	return b
}

// WithSize sets the number of bytes that the packet occupies on the wire.
func (b PacketBuilder) WithSize(size int) PacketBuilder {
	b.size = size
	b.sizeSet = true
	return b
}

// WithSrc sets the source address and port.
func (b PacketBuilder) WithSrc(addr netip.Addr, port uint16) PacketBuilder {
	b.src = addr
	b.srcPort = port
	return b
}

// WithDst sets the destination address and port.
func (b PacketBuilder) WithDst(addr netip.Addr, port uint16) PacketBuilder {
	b.dst = addr
	b.dstPort = port
	return b
}

// WithTTL sets the hop limit of the packet.
func (b PacketBuilder) WithTTL(ttl int) PacketBuilder {
	b.ttl = ttl
	return b
}

// Build creates a new packet.
func (b PacketBuilder) Build() *Packet {
	size := len(b.payload)
	if b.sizeSet {
		size = b.size
	}

	if size < 0 {
		panic("packet size must not be negative")
	}

	return &Packet{
		Payload: b.payload,
		Src:     b.src,
		Dst:     b.dst,
		SrcPort: b.srcPort,
		DstPort: b.dstPort,
		Size:    size,
		TTL:     b.ttl,
	}
}

// A Frame is a packet on a channel, addressed to a device on that channel.
type Frame struct {
	Packet  *Packet
	LinkSrc netip.Addr
	LinkDst netip.Addr
	Sender  *Device
}
