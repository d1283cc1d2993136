package routing

import (
	"log"
	"math"
	"net/netip"

	"github.com/sarchlab/netsim/network"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// PopulateRoutingTables computes the shortest paths between all the nodes,
// counting hops, and installs a router with a host route to every address
// on every node. Nodes that share a channel are one hop apart. The routers
// are returned in the order of the nodes.
func PopulateRoutingTables(nodes []*network.Node) []*Router {
	byID := make(map[int64]*network.Node, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[int64(n.ID())]; dup {
			log.Panicf("node id %d is used twice", n.ID())
		}

		byID[int64(n.ID())] = n
	}

	connGraph := buildConnGraph(nodes, byID)

	routers := make([]*Router, 0, len(nodes))
	for _, src := range nodes {
		table := NewTable()
		spTree := path.DijkstraFrom(simple.Node(src.ID()), connGraph)

		for _, dst := range nodes {
			if dst == src {
				continue
			}

			defineRoutesTo(table, src, dst, spTree, byID)
		}

		routers = append(routers, Install(src, table))
	}

	return routers
}

func buildConnGraph(
	nodes []*network.Node,
	byID map[int64]*network.Node,
) graph.Graph {
	connGraph := simple.NewWeightedUndirectedGraph(0, math.Inf(1))

	for _, n := range nodes {
		connGraph.AddNode(simple.Node(n.ID()))
	}

	for _, n := range nodes {
		for _, nbr := range neighbors(n) {
			if _, known := byID[int64(nbr.ID())]; !known || nbr == n {
				continue
			}

			connGraph.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(n.ID()),
				T: simple.Node(nbr.ID()),
				W: 1.0,
			})
		}
	}

	return connGraph
}

func neighbors(n *network.Node) []*network.Node {
	var nbrs []*network.Node

	for _, d := range n.Devices() {
		if d.Channel() == nil {
			continue
		}

		for _, peer := range d.Channel().Devices() {
			if peer.Node() != n {
				nbrs = append(nbrs, peer.Node())
			}
		}
	}

	return nbrs
}

func defineRoutesTo(
	table Table,
	src, dst *network.Node,
	spTree path.Shortest,
	byID map[int64]*network.Node,
) {
	nodeSeq, _ := spTree.To(int64(dst.ID()))
	if len(nodeSeq) < 2 {
		return
	}

	nextHop := byID[nodeSeq[1].ID()]

	out, in := link(src, nextHop)
	if out == nil {
		return
	}

	for _, addr := range dst.Addresses() {
		table.DefineRoute(netip.PrefixFrom(addr, addr.BitLen()), Route{
			Device:  out,
			NextHop: in.Address(),
		})
	}
}

// link finds a device of the source and a device of the neighbor that are
// attached to the same channel.
func link(src, nbr *network.Node) (out, in *network.Device) {
	for _, d := range src.Devices() {
		if d.Channel() == nil {
			continue
		}

		for _, peer := range d.Channel().Devices() {
			if peer.Node() == nbr {
				return d, peer
			}
		}
	}

	return nil, nil
}
