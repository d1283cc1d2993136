package tracing

import (
	"context"
	"sort"

	"github.com/sarchlab/netsim/datarecording"
)

// A Reader reads the tables written by a DBTracer.
type Reader struct {
	reader datarecording.DataReader
}

// NewReader wraps a DataReader and maps the trace tables.
func NewReader(r datarecording.DataReader) *Reader {
	r.MapTable(TableNodes, NodeEntry{})
	r.MapTable(TablePacketEvents, PacketEvent{})
	r.MapTable(TableHops, Task{})

	return &Reader{reader: r}
}

// Close closes the underlying DataReader.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// Nodes returns the recorded nodes ordered by ID.
func (r *Reader) Nodes(ctx context.Context) ([]NodeEntry, error) {
	rows, _, err := r.reader.Query(ctx, TableNodes,
		datarecording.QueryParams{OrderBy: "ID"})
	if err != nil {
		return nil, err
	}

	return collect[NodeEntry](rows), nil
}

// PacketEvents returns the events of one packet in time order. An empty
// packet ID returns the events of all packets.
func (r *Reader) PacketEvents(
	ctx context.Context,
	packetID string,
) ([]PacketEvent, error) {
	params := datarecording.QueryParams{OrderBy: "Time, rowid"}
	if packetID != "" {
		params.Where = "PacketID = ?"
		params.Args = []any{packetID}
	}

	rows, _, err := r.reader.Query(ctx, TablePacketEvents, params)
	if err != nil {
		return nil, err
	}

	return collect[PacketEvent](rows), nil
}

// Hops returns the channel hops in the order of their start time.
func (r *Reader) Hops(ctx context.Context) ([]Task, error) {
	rows, _, err := r.reader.Query(ctx, TableHops,
		datarecording.QueryParams{OrderBy: "StartTime, EndTime"})
	if err != nil {
		return nil, err
	}

	return collect[Task](rows), nil
}

// ChannelStats summarizes the hops over one channel.
type ChannelStats struct {
	Channel  string
	Hops     int
	BusyTime float64
}

// A Summary counts what a trace holds.
type Summary struct {
	Nodes    int
	Events   map[string]int
	Channels []ChannelStats
}

// Summarize reads the whole trace and counts the events by kind and the
// hops by channel. Channels are sorted by name.
func (r *Reader) Summarize(ctx context.Context) (Summary, error) {
	s := Summary{Events: make(map[string]int)}

	nodes, err := r.Nodes(ctx)
	if err != nil {
		return s, err
	}
	s.Nodes = len(nodes)

	events, err := r.PacketEvents(ctx, "")
	if err != nil {
		return s, err
	}

	for _, e := range events {
		s.Events[e.Event]++
	}

	hops, err := r.Hops(ctx)
	if err != nil {
		return s, err
	}

	byChannel := make(map[string]*ChannelStats)
	for _, h := range hops {
		stats, ok := byChannel[h.Location]
		if !ok {
			stats = &ChannelStats{Channel: h.Location}
			byChannel[h.Location] = stats
		}

		stats.Hops++
		stats.BusyTime += h.EndTime - h.StartTime
	}

	for _, stats := range byChannel {
		s.Channels = append(s.Channels, *stats)
	}

	sort.Slice(s.Channels, func(i, j int) bool {
		return s.Channels[i].Channel < s.Channels[j].Channel
	})

	return s, nil
}

func collect[T any](rows []any) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.(*T))
	}

	return out
}
