package network

import (
	"log"

	"github.com/sarchlab/netsim/sim"
)

// PacketLogger is a hook for logging packets as they move through devices,
// channels, and nodes.
type PacketLogger struct {
	sim.LogHookBase
}

// NewPacketLogger returns a new PacketLogger which will write into the logger
func NewPacketLogger(logger *log.Logger) *PacketLogger {
	return &PacketLogger{sim.LogHookBase{Logger: logger}}
}

// Func writes the packet information into the logger
func (h *PacketLogger) Func(ctx sim.HookCtx) {
	var pkt *Packet

	switch item := ctx.Item.(type) {
	case *Frame:
		pkt = item.Packet
	case *Packet:
		pkt = item
	default:
		return
	}

	where := ""
	if named, ok := ctx.Domain.(sim.Named); ok {
		where = named.Name()
	}

	h.Logf(ctx.Now, "%s,%s,%s,%s,%s,%d,%v",
		where,
		ctx.Pos.Name,
		pkt.Src, pkt.Dst,
		pkt.ID, pkt.Size, detailString(ctx.Detail))
}

func detailString(detail interface{}) string {
	switch d := detail.(type) {
	case nil:
		return ""
	case DropReason:
		return string(d)
	case sim.Named:
		return d.Name()
	case *Frame:
		return d.Packet.ID
	case *Packet:
		return d.ID
	case error:
		return d.Error()
	default:
		return ""
	}
}
