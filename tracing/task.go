package tracing

// A Task is something that takes time in the simulation. A hop of a packet
// over a channel is a task whose parent is the packet.
type Task struct {
	ID        string  `json:"id"`
	ParentID  string  `json:"parent_id"`
	Kind      string  `json:"kind"`
	What      string  `json:"what"`
	Location  string  `json:"location"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// A PacketEvent is something that happens to a packet at a point in time.
type PacketEvent struct {
	Time     float64 `json:"time"`
	PacketID string  `json:"packet_id"`
	Src      string  `json:"src"`
	Dst      string  `json:"dst"`
	Size     int     `json:"size"`
	Where    string  `json:"where"`
	Event    string  `json:"event"`
	Detail   string  `json:"detail"`
}

// A NodeEntry describes a node and where it is drawn.
type NodeEntry struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Addresses string  `json:"addresses"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// Names of the tables that the DBTracer writes.
const (
	TableNodes        = "trace_nodes"
	TablePacketEvents = "trace_packet_events"
	TableHops         = "trace_hops"
)
