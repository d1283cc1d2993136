package network

import (
	"github.com/sarchlab/netsim/sim"
)

type transmission struct {
	sender  *Device
	frame   *Frame
	start   sim.VTimeInSec
	end     sim.VTimeInSec
	doneEvt *sim.Event
}

// CSMAChannel is a shared broadcast medium, like a classic Ethernet segment.
// All the attached devices hear every frame.
//
// A device that starts sending within one propagation delay of another
// ongoing transmission cannot sense it, and both transmissions are destroyed.
// After that window, the carrier is sensed and new transmissions are deferred
// until the medium is quiet.
type CSMAChannel struct {
	channelBase

	policy BackoffPolicy

	current    *transmission
	tailSender *Device
	tailUntil  sim.VTimeInSec
	jamUntil   sim.VTimeInSec

	numCollisions int
}

// Kind returns SharedMedium.
func (c *CSMAChannel) Kind() MediumKind {
	return SharedMedium
}

// Attach connects a device to the shared medium.
func (c *CSMAChannel) Attach(d *Device) error {
	return c.attach(d)
}

// Validate fails if no device is attached.
func (c *CSMAChannel) Validate() error {
	if len(c.devices) == 0 {
		return &ChannelTopologyError{
			Channel: c.name,
			Reason:  "shared channel has no device",
		}
	}

	return nil
}

// BackoffPolicy returns the retry policy used by the devices on the channel.
func (c *CSMAChannel) BackoffPolicy() BackoffPolicy {
	return c.policy
}

// NumCollisions returns how many collisions have happened on the channel.
func (c *CSMAChannel) NumCollisions() int {
	return c.numCollisions
}

// Busy tells if the device would sense a carrier at the current time.
func (c *CSMAChannel) Busy(d *Device) bool {
	now := c.engine.CurrentTime()

	if now < c.jamUntil {
		return true
	}

	if c.current != nil && c.current.sender != d &&
		now >= c.current.start+c.delay {
		return true
	}

	return c.tailSender != nil && c.tailSender != d && now < c.tailUntil
}

// Transmit starts sending the frame on the shared medium. It returns
// ErrChannelBusy if the carrier is sensed and a *PacketCollisionDrop if the
// frame collides with another transmission.
func (c *CSMAChannel) Transmit(from *Device, f *Frame) error {
	if !c.isAttached(from) {
		return &ChannelTopologyError{
			Channel: c.name,
			Reason:  "device " + from.Name() + " is not attached",
		}
	}

	now := c.engine.CurrentTime()

	if now < c.jamUntil {
		return ErrChannelBusy
	}

	if cur := c.current; cur != nil {
		if cur.sender == from {
			panic("device " + from.Name() + " is already transmitting")
		}

		if now <= cur.start || now < cur.start+c.delay {
			return c.collide(cur, from, f, now)
		}

		return ErrChannelBusy
	}

	if c.tailSender != nil && c.tailSender != from && now < c.tailUntil {
		return ErrChannelBusy
	}

	return c.start(from, f, now)
}

func (c *CSMAChannel) start(from *Device, f *Frame, now sim.VTimeInSec) error {
	tx := &transmission{
		sender: from,
		frame:  f,
		start:  now,
		end:    now + c.dataRate.TransmissionTime(f.Packet.Size),
	}

	evt, err := c.engine.Schedule(tx.end, "TxComplete", func() error {
		return c.finish(tx)
	})
	if err != nil {
		return err
	}

	tx.doneEvt = evt
	c.current = tx

	c.hook(HookPosTxStart, f, nil)

	return nil
}

func (c *CSMAChannel) finish(tx *transmission) error {
	c.current = nil
	c.tailSender = tx.sender
	c.tailUntil = tx.end + c.delay

	c.hook(HookPosTxEnd, tx.frame, nil)

	for _, d := range c.devices {
		if d == tx.sender {
			continue
		}

		receiver := d
		_, err := c.engine.ScheduleAfter(c.delay, "Deliver", func() error {
			c.hook(HookPosDeliver, tx.frame, receiver)
			return receiver.receive(tx.frame)
		})
		if err != nil {
			return err
		}
	}

	return tx.sender.transmitComplete(tx.frame)
}

func (c *CSMAChannel) collide(
	cur *transmission,
	from *Device,
	f *Frame,
	now sim.VTimeInSec,
) error {
	c.engine.Cancel(cur.doneEvt)
	c.current = nil
	c.numCollisions++

	if now+c.delay > c.jamUntil {
		c.jamUntil = now + c.delay
	}

	c.hook(HookPosCollision, cur.frame, f)
	c.hook(HookPosCollision, f, cur.frame)

	victimErr := &PacketCollisionDrop{
		Channel:  c.name,
		Time:     now,
		PacketID: cur.frame.Packet.ID,
		Other:    f.Packet.ID,
	}
	if err := cur.sender.transmitFailed(cur.frame, victimErr); err != nil {
		return err
	}

	return &PacketCollisionDrop{
		Channel:  c.name,
		Time:     now,
		PacketID: f.Packet.ID,
		Other:    cur.frame.Packet.ID,
	}
}

func (c *CSMAChannel) backoff() BackoffPolicy {
	return c.policy
}

// CSMABuilder can build shared channels.
type CSMABuilder struct {
	engine   sim.Engine
	dataRate DataRate
	delay    sim.VTimeInSec
	policy   BackoffPolicy
}

// MakeCSMABuilder creates a new CSMABuilder with default parameters.
func MakeCSMABuilder() CSMABuilder {
	return CSMABuilder{
		dataRate: 100 * Mbps,
		delay:    6560e-9,
		policy:   DefaultBackoffPolicy(),
	}
}

// WithEngine sets the engine that the channel schedules events on.
func (b CSMABuilder) WithEngine(e sim.Engine) CSMABuilder {
	b.engine = e
	return b
}

// WithDataRate sets the bandwidth of the medium.
func (b CSMABuilder) WithDataRate(r DataRate) CSMABuilder {
	b.dataRate = r
	return b
}

// WithDelay sets the propagation delay of the medium.
func (b CSMABuilder) WithDelay(d sim.VTimeInSec) CSMABuilder {
	b.delay = d
	return b
}

// WithBackoffPolicy sets how devices retry after collisions.
func (b CSMABuilder) WithBackoffPolicy(p BackoffPolicy) CSMABuilder {
	b.policy = p
	return b
}

// Build creates a new shared channel.
func (b CSMABuilder) Build(name string) *CSMAChannel {
	if b.engine == nil {
		panic("engine is not given")
	}

	dataRateMustBeValid(b.dataRate)
	delayMustBeValid(b.delay)
	sim.NameMustBeValid(name)

	if err := b.policy.Validate(); err != nil {
		panic("invalid backoff policy: " + err.Error())
	}

	c := &CSMAChannel{policy: b.policy}
	c.owner = c
	c.name = name
	c.engine = b.engine
	c.dataRate = b.dataRate
	c.delay = b.delay

	return c
}
