package network

import "github.com/sarchlab/netsim/sim"

// HookPosDeviceEnqueue marks a packet entering the transmit queue of a
// device. The item is the frame.
var HookPosDeviceEnqueue = &sim.HookPos{Name: "Device Enqueue"}

// HookPosDeviceDrop marks a packet dropped by a device. The item is the frame
// and the detail is the DropReason.
var HookPosDeviceDrop = &sim.HookPos{Name: "Device Drop"}

// HookPosDeviceBackoff marks a device deferring a transmission. The detail is
// the error that caused the deferral.
var HookPosDeviceBackoff = &sim.HookPos{Name: "Device Backoff"}

// HookPosTxStart marks a frame starting to occupy a channel.
var HookPosTxStart = &sim.HookPos{Name: "Tx Start"}

// HookPosTxEnd marks the last bit of a frame leaving the sender.
var HookPosTxEnd = &sim.HookPos{Name: "Tx End"}

// HookPosDeliver marks a frame arriving at a device on the channel. The
// detail is the receiving device.
var HookPosDeliver = &sim.HookPos{Name: "Deliver"}

// HookPosCollision marks a frame destroyed by a collision.
var HookPosCollision = &sim.HookPos{Name: "Collision"}

// HookPosNodeRecv marks a packet handed to a node by one of its devices.
var HookPosNodeRecv = &sim.HookPos{Name: "Node Recv"}

// HookPosNodeDrop marks a packet that a node could not consume or forward.
// The item is the packet and the detail is the DropReason.
var HookPosNodeDrop = &sim.HookPos{Name: "Node Drop"}

// DropReason tells why a packet is dropped.
type DropReason string

// Reasons for dropping packets.
const (
	DropQueueFull        DropReason = "queue-full"
	DropRetriesExhausted DropReason = "retries-exhausted"
	DropNoHandler        DropReason = "no-handler"
	DropNoRoute          DropReason = "no-route"
	DropTTLExpired       DropReason = "ttl-expired"
)
