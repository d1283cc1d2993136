package tracing

import (
	"context"
	"net/netip"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/datarecording"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
)

var _ = Describe("Reader", func() {
	var (
		reader  *Reader
		packets []*network.Packet
	)

	BeforeEach(func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "trace")
		recorder := datarecording.New(dbPath)
		tracer := NewDBTracer(recorder)
		tracer.EnableTracing()

		engine := sim.NewSerialEngine()
		nodeA := network.NewNode(0, "A", engine)
		nodeB := network.NewNode(1, "B", engine)
		devA := nodeA.CreateDevice("Eth0")
		devB := nodeB.CreateDevice("Eth0")
		devA.SetAddress(netip.MustParseAddr("10.1.1.1"))
		devB.SetAddress(netip.MustParseAddr("10.1.1.2"))
		nodeB.SetPosition(network.Position{X: 5, Y: 1})

		link := network.MakePointToPointBuilder().
			WithEngine(engine).
			WithDataRate(5 * network.Mbps).
			WithDelay(0.002).
			Build("Link")
		Expect(link.Attach(devA)).To(Succeed())
		Expect(link.Attach(devB)).To(Succeed())
		nodeB.RegisterHandler(devB.Address(),
			func(*network.Device, *network.Packet) error { return nil })

		CollectTrace(tracer, link, devA, devB, nodeA, nodeB)
		tracer.RecordNode(nodeB)
		tracer.RecordNode(nodeA)

		packets = nil
		for _, t := range []sim.VTimeInSec{1, 2} {
			pkt := network.MakePacketBuilder().
				WithSize(1024).
				WithDst(devB.Address(), 9).
				Build()
			packets = append(packets, pkt)

			_, err := engine.Schedule(t, "Send", func() error {
				return devA.Send(pkt, devB.Address())
			})
			Expect(err).ToNot(HaveOccurred())
		}

		Expect(engine.Run()).To(Succeed())
		tracer.Terminate()
		Expect(recorder.Close()).To(Succeed())

		reader = NewReader(datarecording.NewReader(dbPath + ".sqlite3"))
		DeferCleanup(reader.Close)
	})

	It("should read the nodes in ID order", func() {
		nodes, err := reader.Nodes(context.Background())

		Expect(err).ToNot(HaveOccurred())
		Expect(nodes).To(HaveLen(2))
		Expect(nodes[0].Name).To(Equal("A"))
		Expect(nodes[1].Addresses).To(Equal("10.1.1.2"))
		Expect(nodes[1].X).To(Equal(5.0))
	})

	It("should read the events of one packet", func() {
		events, err := reader.PacketEvents(context.Background(), packets[1].ID)

		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].Event).To(Equal("enqueue"))
		Expect(events[0].Time).To(BeNumerically("~", 2, 1e-12))
		Expect(events[1].Event).To(Equal("recv"))
	})

	It("should summarize the trace", func() {
		summary, err := reader.Summarize(context.Background())

		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Nodes).To(Equal(2))
		Expect(summary.Events).To(Equal(map[string]int{
			"enqueue": 2,
			"recv":    2,
		}))
		Expect(summary.Channels).To(HaveLen(1))
		Expect(summary.Channels[0].Channel).To(Equal("Link"))
		Expect(summary.Channels[0].Hops).To(Equal(2))
		Expect(summary.Channels[0].BusyTime).
			To(BeNumerically("~", 2*(1.6384e-3+0.002), 1e-12))
	})
})
