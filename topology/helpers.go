// Package topology builds networks: it installs channels between nodes,
// assigns addresses, places nodes on a plane, and loads whole networks from
// description files.
package topology

import (
	"fmt"

	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
	"github.com/sarchlab/netsim/simulation"
)

// A PointToPointHelper connects two nodes with a point-to-point link.
type PointToPointHelper struct {
	DataRate  network.DataRate
	Delay     sim.VTimeInSec
	QueueSize int
}

// NewPointToPointHelper creates a helper with the default link parameters.
func NewPointToPointHelper() *PointToPointHelper {
	return &PointToPointHelper{
		DataRate:  5 * network.Mbps,
		Delay:     0.002,
		QueueSize: network.DefaultQueueSize,
	}
}

// Install creates a device on each of the two nodes and connects them with a
// new link, registered with the simulation under the given name.
func (h *PointToPointHelper) Install(
	s *simulation.Simulation,
	name string,
	a, b *network.Node,
) (*network.PointToPointChannel, []*network.Device, error) {
	if a == b {
		return nil, nil, fmt.Errorf("link %s connects node %s to itself",
			name, a.Name())
	}

	link := network.MakePointToPointBuilder().
		WithEngine(s.Engine()).
		WithDataRate(h.DataRate).
		WithDelay(h.Delay).
		Build(name)

	devices, err := attachNewDevices(link, h.QueueSize, a, b)
	if err != nil {
		return nil, nil, err
	}

	s.RegisterChannel(link)

	return link, devices, nil
}

// A CSMAHelper connects a group of nodes to a shared medium.
type CSMAHelper struct {
	DataRate  network.DataRate
	Delay     sim.VTimeInSec
	QueueSize int
	Backoff   network.BackoffPolicy
}

// NewCSMAHelper creates a helper with the default medium parameters.
func NewCSMAHelper() *CSMAHelper {
	return &CSMAHelper{
		DataRate:  100 * network.Mbps,
		Delay:     6560e-9,
		QueueSize: network.DefaultQueueSize,
		Backoff:   network.DefaultBackoffPolicy(),
	}
}

// Install creates a device on each node and attaches all of them to a new
// shared medium, registered with the simulation under the given name.
func (h *CSMAHelper) Install(
	s *simulation.Simulation,
	name string,
	nodes ...*network.Node,
) (*network.CSMAChannel, []*network.Device, error) {
	lan := network.MakeCSMABuilder().
		WithEngine(s.Engine()).
		WithDataRate(h.DataRate).
		WithDelay(h.Delay).
		WithBackoffPolicy(h.Backoff).
		Build(name)

	devices, err := attachNewDevices(lan, h.QueueSize, nodes...)
	if err != nil {
		return nil, nil, err
	}

	s.RegisterChannel(lan)

	return lan, devices, nil
}

func attachNewDevices(
	c network.Channel,
	queueSize int,
	nodes ...*network.Node,
) ([]*network.Device, error) {
	devices := make([]*network.Device, 0, len(nodes))

	for _, n := range nodes {
		name := fmt.Sprintf("Eth%d", len(n.Devices()))
		dev := n.CreateDeviceWithQueueSize(name, queueSize)

		if err := c.Attach(dev); err != nil {
			return nil, err
		}

		devices = append(devices, dev)
	}

	return devices, nil
}
