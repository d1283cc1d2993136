package network

import (
	"errors"
	"fmt"

	"github.com/sarchlab/netsim/sim"
)

// ErrChannelBusy is returned by a shared channel when a device senses the
// carrier of another transmission. The device defers and retries.
var ErrChannelBusy = errors.New("channel busy")

// ErrQueueFull is returned by Send when the transmit queue of the device has
// no room for the packet. The packet is dropped.
var ErrQueueFull = errors.New("transmit queue full")

// ChannelTopologyError reports that a channel is wired in a way it does not
// support, such as a third device on a point-to-point channel.
type ChannelTopologyError struct {
	Channel string
	Reason  string
}

func (e *ChannelTopologyError) Error() string {
	return fmt.Sprintf("channel %s: %s", e.Channel, e.Reason)
}

// NoChannelAttachedError is returned when a device sends without a channel.
type NoChannelAttachedError struct {
	Device string
}

func (e *NoChannelAttachedError) Error() string {
	return fmt.Sprintf("device %s has no channel attached", e.Device)
}

// PacketCollisionDrop reports that a transmission on a shared channel was
// destroyed by an overlapping transmission. The sending device backs off and
// retries the packet.
type PacketCollisionDrop struct {
	Channel  string
	Time     sim.VTimeInSec
	PacketID string
	Other    string
}

func (e *PacketCollisionDrop) Error() string {
	return fmt.Sprintf(
		"packet %s collided with %s on channel %s at %.10f",
		e.PacketID, e.Other, e.Channel, e.Time,
	)
}

// IsRecoverable tells if a transmit error can be handled by retrying the
// packet later.
func IsRecoverable(err error) bool {
	var collision *PacketCollisionDrop
	if errors.As(err, &collision) {
		return true
	}

	return errors.Is(err, ErrChannelBusy)
}
