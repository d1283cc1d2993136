package topology

import "fmt"

// City describes the network of a small city. Ten routers form three
// three-hop paths from n0 to n7, n8, and n9. Each of n7, n8, and n9 is the
// gateway of a LAN with three hosts, in the hospital, the school, and the
// bank. An echo client on n0 sends one packet to an echo server on the
// second hospital host.
func City() *Description {
	d := &Description{
		Name:     "city",
		StopTime: 10,
		Routing:  RoutingGlobal,
		Defaults: DefaultsDesc{
			PointToPoint: MediumDesc{DataRate: Rate(5e6), Delay: NewDuration(2e-3)},
			CSMA:         MediumDesc{DataRate: Rate(10e6), Delay: NewDuration(6560e-9)},
		},
	}

	for i := 0; i < 10; i++ {
		d.Nodes = append(d.Nodes, fmt.Sprintf("n%d", i))
	}

	paths := [][]string{
		{"n0", "n1", "n4", "n7"},
		{"n0", "n2", "n5", "n8"},
		{"n0", "n3", "n6", "n9"},
	}
	for i, path := range paths {
		subnet := SubnetDesc{Base: fmt.Sprintf("10.1.%d.0/24", i+1)}

		for j := 0; j+1 < len(path); j++ {
			name := path[j] + "-" + path[j+1]
			d.Links = append(d.Links, LinkDesc{
				Name:  name,
				Nodes: []string{path[j], path[j+1]},
			})
			subnet.Channels = append(subnet.Channels, name)
		}

		d.Subnets = append(d.Subnets, subnet)
	}

	d.Mobility = MobilityDesc{
		Grid: &GridDesc{
			DeltaX:    5,
			DeltaY:    10,
			GridWidth: 5,
			Layout:    RowFirst.String(),
		},
		Order: append([]string(nil), d.Nodes...),
		Positions: map[string]PositionDesc{
			"n0": {X: 3, Y: 8},
			"n1": {X: 1, Y: 2},
			"n2": {X: 3, Y: 2},
			"n3": {X: 5, Y: 2},
		},
	}

	lans := []struct {
		name    string
		gateway string
	}{
		{"hospital", "n7"},
		{"school", "n8"},
		{"bank", "n9"},
	}
	for i, l := range lans {
		members := []string{l.gateway}
		for j := 1; j <= 3; j++ {
			host := fmt.Sprintf("%s%d", l.name, j)
			members = append(members, host)
			d.Nodes = append(d.Nodes, host)
			d.Mobility.Positions[host] = PositionDesc{
				X: float64(3*i + j),
				Y: 1,
			}
		}

		d.LANs = append(d.LANs, LANDesc{Name: l.name, Nodes: members})
		d.Subnets = append(d.Subnets, SubnetDesc{
			Base:     fmt.Sprintf("10.2.%d.0/24", i+1),
			Channels: []string{l.name},
		})
		d.Mobility.Order = append(d.Mobility.Order, members...)
	}

	d.Echo = EchoDesc{
		Servers: []EchoServerDesc{{
			Name:  "EchoServer",
			Node:  "hospital2",
			Port:  9,
			Start: 1,
			Stop:  10,
		}},
		Clients: []EchoClientDesc{{
			Name:       "EchoClient",
			Node:       "n0",
			Remote:     "10.2.1.3",
			Port:       9,
			MaxPackets: 1,
			Interval:   1,
			PacketSize: 1024,
			Start:      2,
			Stop:       10,
		}},
	}

	return d
}
