// Package echo provides applications that bounce packets between two nodes.
package echo

import (
	"net/netip"

	"github.com/sarchlab/netsim/network"
)

// DefaultPort is the well-known port of the echo service.
const DefaultPort uint16 = 9

// Transport is what the echo applications need from the network stack of a
// node.
type Transport interface {
	// Bind makes the handler consume the packets that arrive at the node
	// for the address and port.
	Bind(node *network.Node, addr netip.Addr, port uint16, h network.PacketHandler)

	// Unbind removes a handler registered with Bind.
	Unbind(node *network.Node, addr netip.Addr, port uint16)

	// Send originates a packet from the node, choosing the outgoing device
	// by the destination.
	Send(node *network.Node, pkt *network.Packet) error
}
