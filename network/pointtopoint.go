package network

import (
	"math"

	"github.com/sarchlab/netsim/sim"
)

// PointToPointChannel is a full-duplex link between exactly two devices.
// Frames sent in one direction never interfere with frames in the other
// direction.
type PointToPointChannel struct {
	channelBase
}

// Kind returns PointToPointMedium.
func (c *PointToPointChannel) Kind() MediumKind {
	return PointToPointMedium
}

// Attach connects a device to one end of the link. Attaching a third device
// fails.
func (c *PointToPointChannel) Attach(d *Device) error {
	if len(c.devices) >= 2 {
		return &ChannelTopologyError{
			Channel: c.name,
			Reason:  "point-to-point channel accepts only two devices",
		}
	}

	return c.attach(d)
}

// Validate fails unless both ends of the link are connected.
func (c *PointToPointChannel) Validate() error {
	if len(c.devices) != 2 {
		return &ChannelTopologyError{
			Channel: c.name,
			Reason:  "point-to-point channel needs two devices",
		}
	}

	return nil
}

// Peer returns the device on the other end of the link.
func (c *PointToPointChannel) Peer(d *Device) *Device {
	if len(c.devices) != 2 {
		return nil
	}

	switch d {
	case c.devices[0]:
		return c.devices[1]
	case c.devices[1]:
		return c.devices[0]
	default:
		return nil
	}
}

// Transmit serializes the frame onto the link. The sender is notified when
// the last bit leaves and the peer receives the frame one propagation delay
// later.
func (c *PointToPointChannel) Transmit(from *Device, f *Frame) error {
	if err := c.Validate(); err != nil {
		return err
	}

	peer := c.Peer(from)
	if peer == nil {
		return &ChannelTopologyError{
			Channel: c.name,
			Reason:  "device " + from.Name() + " is not attached",
		}
	}

	txTime := c.dataRate.TransmissionTime(f.Packet.Size)

	_, err := c.engine.ScheduleAfter(txTime, "TxComplete", func() error {
		c.hook(HookPosTxEnd, f, nil)
		return from.transmitComplete(f)
	})
	if err != nil {
		return err
	}

	_, err = c.engine.ScheduleAfter(txTime+c.delay, "Deliver", func() error {
		c.hook(HookPosDeliver, f, peer)
		return peer.receive(f)
	})
	if err != nil {
		return err
	}

	c.hook(HookPosTxStart, f, nil)

	return nil
}

func (c *PointToPointChannel) backoff() BackoffPolicy {
	return BackoffPolicy{}
}

// PointToPointBuilder can build point-to-point channels.
type PointToPointBuilder struct {
	engine   sim.Engine
	dataRate DataRate
	delay    sim.VTimeInSec
}

// MakePointToPointBuilder creates a new PointToPointBuilder with default
// parameters.
func MakePointToPointBuilder() PointToPointBuilder {
	return PointToPointBuilder{
		dataRate: 5 * Mbps,
		delay:    0.002,
	}
}

// WithEngine sets the engine that the channel schedules events on.
func (b PointToPointBuilder) WithEngine(e sim.Engine) PointToPointBuilder {
	b.engine = e
	return b
}

// WithDataRate sets the bandwidth of each direction of the link.
func (b PointToPointBuilder) WithDataRate(r DataRate) PointToPointBuilder {
	b.dataRate = r
	return b
}

// WithDelay sets the propagation delay of the link.
func (b PointToPointBuilder) WithDelay(d sim.VTimeInSec) PointToPointBuilder {
	b.delay = d
	return b
}

// Build creates a new point-to-point channel.
func (b PointToPointBuilder) Build(name string) *PointToPointChannel {
	b.engineMustBeGiven()
	dataRateMustBeValid(b.dataRate)
	delayMustBeValid(b.delay)
	sim.NameMustBeValid(name)

	c := &PointToPointChannel{}
	c.owner = c
	c.name = name
	c.engine = b.engine
	c.dataRate = b.dataRate
	c.delay = b.delay

	return c
}

func (b PointToPointBuilder) engineMustBeGiven() {
	if b.engine == nil {
		panic("engine is not given")
	}
}

func dataRateMustBeValid(r DataRate) {
	if !r.valid() {
		panic("data rate must be positive and finite")
	}
}

func delayMustBeValid(d sim.VTimeInSec) {
	if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) || d < 0 {
		panic("delay must be finite and not negative")
	}
}
