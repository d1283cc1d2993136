package network

import (
	"errors"
	"log"
	"net/netip"

	"github.com/iti/rngstream"
	"github.com/sarchlab/netsim/sim"
)

// DefaultQueueSize is the number of packets a device can hold while waiting
// for the channel.
const DefaultQueueSize = 100

type deviceState int

const (
	deviceIdle deviceState = iota
	deviceTransmitting
	deviceBackingOff
)

// DeviceStats counts what happened on a device.
type DeviceStats struct {
	Enqueued   int
	Sent       int
	Received   int
	Dropped    int
	Collisions int
	Deferrals  int
}

// A Device is a network interface of a node. It owns a drop-tail transmit
// queue and sends the packets in the queue one at a time over its channel.
type Device struct {
	sim.HookableBase

	name    string
	node    *Node
	engine  sim.Engine
	channel Channel
	address netip.Addr

	txQueue  sim.Buffer
	state    deviceState
	failures int
	rng      *rngstream.RngStream

	stats DeviceStats
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// Node returns the node that the device belongs to.
func (d *Device) Node() *Node {
	return d.node
}

// Channel returns the channel that the device is attached to. It returns nil
// if the device is not attached.
func (d *Device) Channel() Channel {
	return d.channel
}

// Address returns the address of the device.
func (d *Device) Address() netip.Addr {
	return d.address
}

// SetAddress assigns an address to the device. It panics if another device
// of the same node already uses the address.
func (d *Device) SetAddress(addr netip.Addr) {
	d.node.assignAddress(d, addr)
}

// QueueLength returns the number of packets waiting in the transmit queue,
// including the one being sent.
func (d *Device) QueueLength() int {
	return d.txQueue.Size()
}

// TxQueue returns the transmit queue of the device.
func (d *Device) TxQueue() sim.Buffer {
	return d.txQueue
}

// Stats returns the counters of the device.
func (d *Device) Stats() DeviceStats {
	return d.stats
}

// Send enqueues a packet for transmission to the device on the same channel
// that owns the given link-level address. If dst is not valid, the
// destination of the packet is used.
//
// Send assigns an ID and a creation time to packets that do not have one and
// fills in the source address. The packet must not be modified afterward.
func (d *Device) Send(pkt *Packet, dst netip.Addr) error {
	if d.channel == nil {
		return &NoChannelAttachedError{Device: d.name}
	}

	if pkt.ID == "" {
		pkt.ID = d.engine.IDGenerator().Generate()
		pkt.CreationTime = d.engine.CurrentTime()
	}

	if !pkt.Src.IsValid() {
		pkt.Src = d.address
	}

	if !dst.IsValid() {
		dst = pkt.Dst
	}

	f := &Frame{
		Packet:  pkt,
		LinkSrc: d.address,
		LinkDst: dst,
		Sender:  d,
	}

	if !d.txQueue.CanPush() {
		d.drop(f, DropQueueFull)
		return ErrQueueFull
	}

	d.txQueue.Push(f)
	d.stats.Enqueued++
	d.hook(HookPosDeviceEnqueue, f, nil)

	return d.tryTransmit()
}

func (d *Device) tryTransmit() error {
	if d.state != deviceIdle {
		return nil
	}

	item := d.txQueue.Peek()
	if item == nil {
		return nil
	}

	f := item.(*Frame)
	d.state = deviceTransmitting

	err := d.channel.Transmit(d, f)
	if err == nil {
		return nil
	}

	return d.transmitFailed(f, err)
}

func (d *Device) transmitComplete(f *Frame) error {
	if d.txQueue.Peek() != f {
		log.Panicf("device %s completed a frame that is not at the front", d.name)
	}

	d.txQueue.Pop()
	d.state = deviceIdle
	d.failures = 0
	d.stats.Sent++

	return d.tryTransmit()
}

func (d *Device) transmitFailed(f *Frame, err error) error {
	d.state = deviceIdle

	if !IsRecoverable(err) {
		return err
	}

	var collision *PacketCollisionDrop
	if errors.As(err, &collision) {
		d.stats.Collisions++
	} else {
		d.stats.Deferrals++
	}

	d.failures++
	policy := d.channel.backoff()

	if policy.Exhausted(d.failures) {
		d.txQueue.Pop()
		d.failures = 0
		d.drop(f, DropRetriesExhausted)
		d.node.reportDeliveryFailure(f.Packet, err)

		return d.scheduleRetry(0)
	}

	d.hook(HookPosDeviceBackoff, f, err)

	return d.scheduleRetry(policy.Delay(d.failures, d.rng))
}

func (d *Device) scheduleRetry(after sim.VTimeInSec) error {
	d.state = deviceBackingOff

	_, err := d.engine.ScheduleAfter(after, "Backoff", func() error {
		d.state = deviceIdle
		return d.tryTransmit()
	})

	return err
}

func (d *Device) receive(f *Frame) error {
	if d.channel.Kind() == SharedMedium && !d.accepts(f.LinkDst) {
		return nil
	}

	d.stats.Received++

	return d.node.receive(d, f.Packet)
}

func (d *Device) accepts(addr netip.Addr) bool {
	return !addr.IsValid() || addr == d.address || addr == BroadcastAddress
}

func (d *Device) drop(f *Frame, reason DropReason) {
	d.stats.Dropped++
	d.hook(HookPosDeviceDrop, f, reason)
}

func (d *Device) hook(pos *sim.HookPos, item, detail interface{}) {
	if d.NumHooks() == 0 {
		return
	}

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Now:    d.engine.CurrentTime(),
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}
