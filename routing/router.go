package routing

import (
	"errors"

	"github.com/sarchlab/netsim/network"
)

// A Router sends the packets originated by a node and forwards the packets
// that pass through it.
type Router struct {
	node  *network.Node
	table Table
}

// Install creates a router for the node and makes it forward every packet
// that the node does not consume.
func Install(node *network.Node, table Table) *Router {
	r := &Router{node: node, table: table}
	node.SetDefaultHandler(r.forward)

	return r
}

// Node returns the node that the router serves.
func (r *Router) Node() *network.Node {
	return r.node
}

// Table returns the routing table of the router.
func (r *Router) Table() Table {
	return r.table
}

// Send originates a packet from the node. Packets sent to an address of the
// node itself are not supported.
func (r *Router) Send(pkt *network.Packet) error {
	route, found := r.table.FindRoute(pkt.Dst)
	if !found {
		return &NoRouteError{Node: r.node.Name(), Dst: pkt.Dst}
	}

	if !pkt.Src.IsValid() {
		pkt.Src = route.Device.Address()
	}

	return route.Device.Send(pkt, route.NextHop)
}

func (r *Router) forward(_ *network.Device, pkt *network.Packet) error {
	if pkt.TTL <= 1 {
		r.node.Drop(pkt, network.DropTTLExpired)
		return nil
	}

	route, found := r.table.FindRoute(pkt.Dst)
	if !found {
		r.node.Drop(pkt, network.DropNoRoute)
		return nil
	}

	fwd := pkt.Clone()
	fwd.TTL--

	err := route.Device.Send(fwd, route.NextHop)
	if errors.Is(err, network.ErrQueueFull) {
		return nil
	}

	return err
}
