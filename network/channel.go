package network

import (
	"github.com/sarchlab/netsim/sim"
)

// MediumKind tells how a channel shares its medium.
type MediumKind int

// The kinds of media supported.
const (
	PointToPointMedium MediumKind = iota
	SharedMedium
)

func (k MediumKind) String() string {
	switch k {
	case PointToPointMedium:
		return "point-to-point"
	case SharedMedium:
		return "shared"
	default:
		return "unknown"
	}
}

// A Channel is the transmission medium that connects devices. A channel
// decides when a transmitted frame reaches the other devices by scheduling
// delivery events on the engine.
//
// Channels call back into devices through unexported methods, so all channel
// implementations live in this package.
type Channel interface {
	sim.Named
	sim.Hookable

	Kind() MediumKind

	// Attach connects a device to the channel.
	Attach(d *Device) error

	// Devices returns the devices attached to the channel, in attaching
	// order.
	Devices() []*Device

	Delay() sim.VTimeInSec
	DataRate() DataRate

	// Validate checks that the channel is wired well enough to carry
	// traffic.
	Validate() error

	// Transmit starts sending a frame from the given device. A recoverable
	// error means that the device should retry later.
	Transmit(from *Device, f *Frame) error

	backoff() BackoffPolicy
}

type channelBase struct {
	sim.HookableBase

	owner    Channel
	name     string
	engine   sim.Engine
	dataRate DataRate
	delay    sim.VTimeInSec
	devices  []*Device
}

func (c *channelBase) Name() string {
	return c.name
}

func (c *channelBase) Devices() []*Device {
	devices := make([]*Device, len(c.devices))
	copy(devices, c.devices)
	return devices
}

func (c *channelBase) Delay() sim.VTimeInSec {
	return c.delay
}

func (c *channelBase) DataRate() DataRate {
	return c.dataRate
}

func (c *channelBase) attach(d *Device) error {
	if d.channel != nil {
		return &ChannelTopologyError{
			Channel: c.name,
			Reason:  "device " + d.Name() + " is already attached to " + d.channel.Name(),
		}
	}

	c.devices = append(c.devices, d)
	d.channel = c.owner

	return nil
}

func (c *channelBase) isAttached(d *Device) bool {
	for _, dev := range c.devices {
		if dev == d {
			return true
		}
	}

	return false
}

func (c *channelBase) hook(pos *sim.HookPos, item, detail interface{}) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c.owner,
		Now:    c.engine.CurrentTime(),
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}
