// Package tracing records what happens to packets so that a run can be
// inspected and visualized after it ends.
package tracing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sarchlab/netsim/datarecording"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
	"github.com/tebeka/atexit"
)

type hopInFlight struct {
	start     sim.VTimeInSec
	channel   string
	remaining int
}

// DBTracer is a hook that stores packet events and channel hops into a
// DataRecorder. It also records the nodes and their positions.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder

	startTime, endTime sim.VTimeInSec
	isTracing          bool

	inFlight map[*network.Frame]*hopInFlight

	numEvents int
	numHops   int
}

// NewDBTracer creates a new DBTracer. Tracing is disabled until
// EnableTracing is called.
func NewDBTracer(dataRecorder datarecording.DataRecorder) *DBTracer {
	dataRecorder.CreateTable(TableNodes, NodeEntry{})
	dataRecorder.CreateTable(TablePacketEvents, PacketEvent{})
	dataRecorder.CreateTable(TableHops, Task{})

	t := &DBTracer{
		backend:  dataRecorder,
		inFlight: make(map[*network.Frame]*hopInFlight),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetTimeRange limits the tracing to the given time range. An end time of 0
// means no limit.
func (t *DBTracer) SetTimeRange(startTime, endTime sim.VTimeInSec) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// EnableTracing starts recording.
func (t *DBTracer) EnableTracing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.isTracing = true
}

// StopTracing stops recording. Hops that are still in flight are discarded.
func (t *DBTracer) StopTracing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.isTracing = false
	t.inFlight = make(map[*network.Frame]*hopInFlight)
	t.backend.Flush()
}

// IsTracing tells if the tracer is recording.
func (t *DBTracer) IsTracing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.isTracing
}

// NumEvents returns the number of packet events recorded.
func (t *DBTracer) NumEvents() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.numEvents
}

// NumHops returns the number of hops recorded.
func (t *DBTracer) NumHops() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.numHops
}

// RecordNode writes the description of a node.
func (t *DBTracer) RecordNode(n *network.Node) {
	addrs := make([]string, 0)
	for _, a := range n.Addresses() {
		addrs = append(addrs, a.String())
	}

	pos := n.Position()
	t.backend.InsertData(TableNodes, NodeEntry{
		ID:        n.ID(),
		Name:      n.Name(),
		Addresses: strings.Join(addrs, ","),
		X:         pos.X,
		Y:         pos.Y,
		Z:         pos.Z,
	})
}

// Terminate flushes the recorded data.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inFlight = nil
	t.backend.Flush()
}

// Func records the packet information carried by the hook context.
func (t *DBTracer) Func(ctx sim.HookCtx) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isTracing || !t.inTimeRange(ctx.Now) || t.inFlight == nil {
		return
	}

	switch ctx.Pos {
	case network.HookPosTxStart:
		t.startHop(ctx)
	case network.HookPosDeliver:
		t.endHop(ctx)
	case network.HookPosCollision:
		f := ctx.Item.(*network.Frame)
		delete(t.inFlight, f)
		t.writeEvent(ctx, f.Packet, "collision")
	case network.HookPosDeviceEnqueue:
		t.writeEvent(ctx, ctx.Item.(*network.Frame).Packet, "enqueue")
	case network.HookPosDeviceDrop:
		t.writeEvent(ctx, ctx.Item.(*network.Frame).Packet, "drop")
	case network.HookPosNodeRecv:
		t.writeEvent(ctx, ctx.Item.(*network.Packet), "recv")
	case network.HookPosNodeDrop:
		t.writeEvent(ctx, ctx.Item.(*network.Packet), "drop")
	}
}

func (t *DBTracer) inTimeRange(now sim.VTimeInSec) bool {
	if now < t.startTime {
		return false
	}

	return t.endTime <= 0 || now <= t.endTime
}

func (t *DBTracer) startHop(ctx sim.HookCtx) {
	ch, ok := ctx.Domain.(network.Channel)
	if !ok {
		return
	}

	f := ctx.Item.(*network.Frame)
	t.inFlight[f] = &hopInFlight{
		start:     ctx.Now,
		channel:   ch.Name(),
		remaining: len(ch.Devices()) - 1,
	}
}

func (t *DBTracer) endHop(ctx sim.HookCtx) {
	f := ctx.Item.(*network.Frame)

	hop, ok := t.inFlight[f]
	if !ok {
		return
	}

	receiver := ""
	if d, ok := ctx.Detail.(*network.Device); ok {
		receiver = d.Name()
	}

	t.backend.InsertData(TableHops, Task{
		ID:        fmt.Sprintf("%s@%s", f.Packet.ID, receiver),
		ParentID:  f.Packet.ID,
		Kind:      "hop",
		What:      f.Sender.Name() + "->" + receiver,
		Location:  hop.channel,
		StartTime: float64(hop.start),
		EndTime:   float64(ctx.Now),
	})
	t.numHops++

	hop.remaining--
	if hop.remaining <= 0 {
		delete(t.inFlight, f)
	}
}

func (t *DBTracer) writeEvent(
	ctx sim.HookCtx,
	pkt *network.Packet,
	event string,
) {
	where := ""
	if named, ok := ctx.Domain.(sim.Named); ok {
		where = named.Name()
	}

	t.backend.InsertData(TablePacketEvents, PacketEvent{
		Time:     float64(ctx.Now),
		PacketID: pkt.ID,
		Src:      pkt.Src.String(),
		Dst:      pkt.Dst.String(),
		Size:     pkt.Size,
		Where:    where,
		Event:    event,
		Detail:   describe(ctx.Detail),
	})
	t.numEvents++
}

func describe(detail interface{}) string {
	switch d := detail.(type) {
	case nil:
		return ""
	case sim.Named:
		return d.Name()
	case *network.Frame:
		return d.Packet.ID
	case error:
		return d.Error()
	default:
		return fmt.Sprint(d)
	}
}
