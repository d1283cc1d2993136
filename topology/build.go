package topology

import (
	"fmt"
	"math"
	"net/netip"

	"github.com/sarchlab/netsim/echo"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
	"github.com/sarchlab/netsim/simulation"
)

// A Network is what Build creates from a description.
type Network struct {
	Nodes    map[string]*network.Node
	Channels map[string]network.Channel
	Devices  map[string][]*network.Device
	Servers  []*echo.Server
	Clients  []*echo.Client
	StopTime sim.VTimeInSec
}

// Build creates the nodes, channels, addresses, positions, routes, and
// applications of the description in the simulation.
func Build(s *simulation.Simulation, desc *Description) (*Network, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	n := &Network{
		Nodes:    make(map[string]*network.Node),
		Channels: make(map[string]network.Channel),
		Devices:  make(map[string][]*network.Device),
		StopTime: sim.VTimeInSec(math.Inf(1)),
	}

	if desc.StopTime > 0 {
		n.StopTime = sim.VTimeInSec(desc.StopTime)
	}

	for _, name := range desc.Nodes {
		node := s.CreateNode(name)
		if desc.Seed != 0 {
			node.SetSeed(desc.Seed)
		}
		n.Nodes[name] = node
	}

	steps := []func(*simulation.Simulation, *Description) error{
		n.buildLinks,
		n.buildLANs,
		n.assignAddresses,
		n.placeNodes,
	}
	for _, step := range steps {
		if err := step(s, desc); err != nil {
			return nil, err
		}
	}

	if desc.Routing != RoutingNone {
		s.PopulateRoutingTables()
	}

	if err := n.installApplications(s, desc); err != nil {
		return nil, err
	}

	return n, nil
}

func (n *Network) nodes(names []string) []*network.Node {
	nodes := make([]*network.Node, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, n.Nodes[name])
	}

	return nodes
}

func (n *Network) buildLinks(s *simulation.Simulation, desc *Description) error {
	for _, l := range desc.Links {
		h := NewPointToPointHelper()
		applyMedium(&h.DataRate, &h.Delay, &h.QueueSize,
			desc.Defaults.PointToPoint, l.MediumDesc)

		nodes := n.nodes(l.Nodes)
		link, devices, err := h.Install(s, l.Name, nodes[0], nodes[1])
		if err != nil {
			return err
		}

		n.Channels[l.Name] = link
		n.Devices[l.Name] = devices
	}

	return nil
}

func (n *Network) buildLANs(s *simulation.Simulation, desc *Description) error {
	for _, l := range desc.LANs {
		h := NewCSMAHelper()
		applyMedium(&h.DataRate, &h.Delay, &h.QueueSize,
			desc.Defaults.CSMA, l.MediumDesc)
		applyBackoff(&h.Backoff, desc.Defaults.Backoff)

		lan, devices, err := h.Install(s, l.Name, n.nodes(l.Nodes)...)
		if err != nil {
			return err
		}

		n.Channels[l.Name] = lan
		n.Devices[l.Name] = devices
	}

	return nil
}

func applyMedium(
	rate *network.DataRate,
	delay *sim.VTimeInSec,
	queueSize *int,
	layers ...MediumDesc,
) {
	for _, m := range layers {
		if m.DataRate > 0 {
			*rate = network.DataRate(m.DataRate)
		}

		if m.Delay != nil {
			*delay = sim.VTimeInSec(*m.Delay)
		}

		if m.QueueSize > 0 {
			*queueSize = m.QueueSize
		}
	}
}

func applyBackoff(p *network.BackoffPolicy, b *BackoffDesc) {
	if b == nil {
		return
	}

	if b.SlotTime > 0 {
		p.SlotTime = sim.VTimeInSec(b.SlotTime)
	}

	if b.MinSlots != 0 {
		p.MinSlots = b.MinSlots
	}

	if b.MaxSlots != 0 {
		p.MaxSlots = b.MaxSlots
	}

	if b.CeilingExponent != 0 {
		p.CeilingExponent = b.CeilingExponent
	}

	if b.MaxRetries != nil {
		p.MaxRetries = *b.MaxRetries
	}
}

func (n *Network) assignAddresses(
	_ *simulation.Simulation,
	desc *Description,
) error {
	var h AddressHelper

	for _, subnet := range desc.Subnets {
		if err := h.SetBase(subnet.Base); err != nil {
			return err
		}

		for _, c := range subnet.Channels {
			if _, err := h.Assign(n.Devices[c]...); err != nil {
				return fmt.Errorf("channel %s: %w", c, err)
			}
		}
	}

	return nil
}

func (n *Network) placeNodes(_ *simulation.Simulation, desc *Description) error {
	m := desc.Mobility

	if m.Grid != nil {
		layout, err := ParseGridLayout(m.Grid.Layout)
		if err != nil {
			return err
		}

		grid := &GridPositionAllocator{
			MinX:      m.Grid.MinX,
			MinY:      m.Grid.MinY,
			DeltaX:    m.Grid.DeltaX,
			DeltaY:    m.Grid.DeltaY,
			GridWidth: m.Grid.GridWidth,
			Layout:    layout,
		}

		order := m.Order
		if len(order) == 0 {
			order = desc.Nodes
		}
		grid.Install(n.nodes(order)...)
	}

	for name, p := range m.Positions {
		n.Nodes[name].SetPosition(network.Position{X: p.X, Y: p.Y, Z: p.Z})
	}

	return nil
}

func (n *Network) installApplications(
	s *simulation.Simulation,
	desc *Description,
) error {
	for _, sd := range desc.Echo.Servers {
		b := echo.MakeServerBuilder().
			WithEngine(s.Engine()).
			WithTransport(s).
			WithNode(n.Nodes[sd.Node]).
			WithStartTime(sim.VTimeInSec(sd.Start))
		if sd.Port != 0 {
			b = b.WithPort(sd.Port)
		}
		if sd.Stop > 0 {
			b = b.WithStopTime(sim.VTimeInSec(sd.Stop))
		}

		server := b.Build(sd.Name)
		if err := server.Install(); err != nil {
			return err
		}
		n.Servers = append(n.Servers, server)
	}

	for _, cd := range desc.Echo.Clients {
		client, err := n.buildClient(s, cd)
		if err != nil {
			return err
		}

		if err := client.Install(); err != nil {
			return err
		}
		n.Clients = append(n.Clients, client)
	}

	return nil
}

func (n *Network) buildClient(
	s *simulation.Simulation,
	cd EchoClientDesc,
) (*echo.Client, error) {
	remote, err := n.resolve(cd.Remote)
	if err != nil {
		return nil, fmt.Errorf("echo client %s: %w", cd.Name, err)
	}

	port := cd.Port
	if port == 0 {
		port = echo.DefaultPort
	}

	b := echo.MakeClientBuilder().
		WithEngine(s.Engine()).
		WithTransport(s).
		WithNode(n.Nodes[cd.Node]).
		WithRemote(remote, port).
		WithStartTime(sim.VTimeInSec(cd.Start))

	if cd.MaxPackets > 0 {
		b = b.WithMaxPackets(cd.MaxPackets)
	}
	if cd.Interval > 0 {
		b = b.WithInterval(sim.VTimeInSec(cd.Interval))
	}
	if cd.PacketSize > 0 {
		b = b.WithPacketSize(cd.PacketSize)
	}
	if cd.Stop > 0 {
		b = b.WithStopTime(sim.VTimeInSec(cd.Stop))
	}

	return b.Build(cd.Name), nil
}

// resolve turns an IP address or a node name into an address.
func (n *Network) resolve(remote string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr, nil
	}

	node, found := n.Nodes[remote]
	if !found {
		return netip.Addr{}, fmt.Errorf("unknown remote %s", remote)
	}

	addrs := node.Addresses()
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("node %s has no address", remote)
	}

	return addrs[0], nil
}
