package simulation

import (
	"bytes"
	"errors"
	"net/netip"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/echo"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/routing"
	"github.com/sarchlab/netsim/sim"
)

var _ echo.Transport = (*Simulation)(nil)

func connect(
	s *Simulation,
	name string,
	rate network.DataRate,
	delay sim.VTimeInSec,
	a, b *network.Node,
	addrA, addrB string,
) *network.PointToPointChannel {
	devA := a.CreateDevice(name)
	devB := b.CreateDevice(name)

	link := network.MakePointToPointBuilder().
		WithEngine(s.Engine()).
		WithDataRate(rate).
		WithDelay(delay).
		Build(name)
	Expect(link.Attach(devA)).To(Succeed())
	Expect(link.Attach(devB)).To(Succeed())

	devA.SetAddress(netip.MustParseAddr(addrA))
	devB.SetAddress(netip.MustParseAddr(addrB))

	s.RegisterChannel(link)

	return link
}

var _ = Describe("Simulation", func() {
	var (
		simulation *Simulation
	)

	BeforeEach(func() {
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			Build()
	})

	AfterEach(func() {
		Expect(simulation.Terminate()).To(Succeed())
	})

	It("should register nodes", func() {
		a := simulation.CreateNode("A")
		b := simulation.CreateNode("B")

		Expect(a.ID()).To(Equal(0))
		Expect(b.ID()).To(Equal(1))
		Expect(simulation.GetNodeByName("B")).To(BeIdenticalTo(b))
		Expect(simulation.GetNodeByName("C")).To(BeNil())
		Expect(simulation.Nodes()).To(Equal([]*network.Node{a, b}))
	})

	It("should panic when registering a node twice", func() {
		simulation.CreateNode("A")

		Expect(func() { simulation.CreateNode("A") }).To(Panic())
	})

	It("should register channels", func() {
		a := simulation.CreateNode("A")
		b := simulation.CreateNode("B")
		link := connect(simulation, "Link", 5*network.Mbps, 0.002,
			a, b, "10.1.1.1", "10.1.1.2")

		Expect(simulation.GetChannelByName("Link")).To(BeIdenticalTo(link))
		Expect(simulation.GetChannelByName("Other")).To(BeNil())
		Expect(simulation.Channels()).To(HaveLen(1))
		Expect(func() { simulation.RegisterChannel(link) }).To(Panic())
	})

	It("should refuse to run a half-connected link", func() {
		a := simulation.CreateNode("A")
		link := network.MakePointToPointBuilder().
			WithEngine(simulation.Engine()).
			Build("Link")
		Expect(link.Attach(a.CreateDevice("Eth0"))).To(Succeed())
		simulation.RegisterChannel(link)

		err := simulation.Run()

		var topoErr *network.ChannelTopologyError
		Expect(errors.As(err, &topoErr)).To(BeTrue())
		Expect(simulation.Engine().Termination()).To(Equal(sim.NotStarted))
	})

	It("should deliver a scheduled packet", func() {
		a := simulation.CreateNode("A")
		b := simulation.CreateNode("B")
		connect(simulation, "Link", 5*network.Mbps, 0.002,
			a, b, "10.1.1.1", "10.1.1.2")

		var arrival sim.VTimeInSec
		simulation.RegisterHandler(b, netip.MustParseAddr("10.1.1.2"),
			func(_ *network.Device, _ *network.Packet) error {
				arrival = simulation.Engine().CurrentTime()
				return nil
			})

		pkt := network.MakePacketBuilder().
			WithDst(netip.MustParseAddr("10.1.1.2"), 9).
			WithSize(1024).
			Build()
		_, err := simulation.ScheduleSend(a, a.Devices()[0], pkt,
			netip.Addr{}, 2)
		Expect(err).ToNot(HaveOccurred())

		Expect(simulation.Run()).To(Succeed())
		Expect(arrival).To(BeNumerically("~", 2+1.6384e-3+0.002, 1e-12))
		Expect(simulation.Engine().Termination()).To(Equal(sim.Completed))
	})

	It("should send a reused packet as separate packets", func() {
		a := simulation.CreateNode("A")
		b := simulation.CreateNode("B")
		connect(simulation, "Link", 5*network.Mbps, 0.002,
			a, b, "10.1.1.1", "10.1.1.2")

		var ids []string
		simulation.RegisterHandler(b, netip.MustParseAddr("10.1.1.2"),
			func(_ *network.Device, pkt *network.Packet) error {
				ids = append(ids, pkt.ID)
				return nil
			})

		pkt := network.MakePacketBuilder().
			WithDst(netip.MustParseAddr("10.1.1.2"), 9).
			WithSize(100).
			Build()
		for _, t := range []sim.VTimeInSec{1, 2} {
			_, err := simulation.ScheduleSend(a, nil, pkt, netip.Addr{}, t)
			Expect(err).ToNot(HaveOccurred())
		}

		Expect(simulation.Run()).To(Succeed())
		Expect(ids).To(HaveLen(2))
		Expect(ids[0]).ToNot(BeEmpty())
		Expect(ids[1]).ToNot(Equal(ids[0]))
		Expect(pkt.ID).To(BeEmpty())
		Expect(pkt.Src.IsValid()).To(BeFalse())
	})

	It("should give every node the seed of the simulation", func() {
		Expect(simulation.CreateNode("A").Seed()).To(Equal(network.DefaultSeed))

		seeded := MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			WithSeed(42).
			Build()
		defer func() { Expect(seeded.Terminate()).To(Succeed()) }()

		Expect(seeded.CreateNode("A").Seed()).To(Equal(uint64(42)))
	})

	It("should panic if the device does not belong to the node", func() {
		a := simulation.CreateNode("A")
		b := simulation.CreateNode("B")
		connect(simulation, "Link", 5*network.Mbps, 0.002,
			a, b, "10.1.1.1", "10.1.1.2")

		pkt := network.MakePacketBuilder().Build()

		Expect(func() {
			_, _ = simulation.ScheduleSend(a, b.Devices()[0], pkt,
				netip.Addr{}, 1)
		}).To(Panic())
	})

	It("should fail the run when sending without a channel", func() {
		a := simulation.CreateNode("A")
		dev := a.CreateDevice("Eth0")

		pkt := network.MakePacketBuilder().
			WithDst(netip.MustParseAddr("10.1.1.2"), 9).
			Build()
		_, err := simulation.ScheduleSend(a, dev, pkt, netip.Addr{}, 1)
		Expect(err).ToNot(HaveOccurred())

		err = simulation.Run()

		var noChannel *network.NoChannelAttachedError
		Expect(errors.As(err, &noChannel)).To(BeTrue())
		var cbErr *sim.CallbackError
		Expect(errors.As(err, &cbErr)).To(BeTrue())
		Expect(cbErr.Time).To(Equal(sim.VTimeInSec(1)))
	})

	It("should not send from a multi-homed node without a router", func() {
		a := simulation.CreateNode("A")
		b := simulation.CreateNode("B")
		c := simulation.CreateNode("C")
		connect(simulation, "AB", 5*network.Mbps, 0.002,
			a, b, "10.1.1.1", "10.1.1.2")
		connect(simulation, "AC", 5*network.Mbps, 0.002,
			a, c, "10.1.2.1", "10.1.2.2")

		pkt := network.MakePacketBuilder().
			WithDst(netip.MustParseAddr("10.1.2.2"), 9).
			Build()
		err := simulation.Send(a, pkt)

		var noRoute *routing.NoRouteError
		Expect(errors.As(err, &noRoute)).To(BeTrue())
	})

	It("should route scheduled packets", func() {
		a := simulation.CreateNode("A")
		b := simulation.CreateNode("B")
		c := simulation.CreateNode("C")
		connect(simulation, "AB", 5*network.Mbps, 0.002,
			a, b, "10.1.1.1", "10.1.1.2")
		connect(simulation, "BC", 5*network.Mbps, 0.002,
			b, c, "10.1.2.1", "10.1.2.2")
		simulation.PopulateRoutingTables()

		Expect(simulation.Router(a)).ToNot(BeNil())

		var got *network.Packet
		simulation.Bind(c, netip.MustParseAddr("10.1.2.2"), 9,
			func(_ *network.Device, pkt *network.Packet) error {
				got = pkt
				return nil
			})

		pkt := network.MakePacketBuilder().
			WithDst(netip.MustParseAddr("10.1.2.2"), 9).
			WithSize(1024).
			Build()
		_, err := simulation.ScheduleSend(a, nil, pkt, netip.Addr{}, 2)
		Expect(err).ToNot(HaveOccurred())

		Expect(simulation.Run()).To(Succeed())
		Expect(got).ToNot(BeNil())
		Expect(got.Src).To(Equal(netip.MustParseAddr("10.1.1.1")))
		Expect(got.TTL).To(Equal(network.DefaultTTL - 1))
	})

	It("should echo a packet and truncate at the stop time", func() {
		client := simulation.CreateNode("Client")
		server := simulation.CreateNode("Server")
		connect(simulation, "Link", network.Gbps, 0.003,
			client, server, "10.1.1.1", "10.1.1.2")

		var serverRecv, clientRecv sim.VTimeInSec
		simulation.RegisterHandler(server, netip.MustParseAddr("10.1.1.2"),
			func(_ *network.Device, pkt *network.Packet) error {
				serverRecv = simulation.Engine().CurrentTime()
				reply := network.MakePacketBuilder().
					WithDst(pkt.Src, pkt.SrcPort).
					WithSrc(pkt.Dst, pkt.DstPort).
					Build()
				return simulation.Send(server, reply)
			})
		simulation.RegisterHandler(client, netip.MustParseAddr("10.1.1.1"),
			func(_ *network.Device, _ *network.Packet) error {
				clientRecv = simulation.Engine().CurrentTime()
				return nil
			})

		pkt := network.MakePacketBuilder().
			WithDst(netip.MustParseAddr("10.1.1.2"), 9).
			Build()
		_, err := simulation.ScheduleSend(client, nil, pkt, netip.Addr{}, 2)
		Expect(err).ToNot(HaveOccurred())
		_, err = simulation.Engine().Schedule(20, "Late", nil)
		Expect(err).ToNot(HaveOccurred())

		Expect(simulation.RunUntil(10)).To(Succeed())

		Expect(serverRecv).To(BeNumerically("~", 2.003, 1e-12))
		Expect(clientRecv).To(BeNumerically("~", 2.006, 1e-12))
		Expect(simulation.Engine().Termination()).To(Equal(sim.Truncated))
		Expect(simulation.Engine().CurrentTime()).To(Equal(sim.VTimeInSec(10)))
		Expect(simulation.Engine().Pending()).To(Equal(1))
	})

	It("should stop at the scheduled stop time", func() {
		_, err := simulation.ScheduleStop(5)
		Expect(err).ToNot(HaveOccurred())
		_, err = simulation.Engine().Schedule(6, "After", nil)
		Expect(err).ToNot(HaveOccurred())

		Expect(simulation.Run()).To(Succeed())

		Expect(simulation.Engine().Termination()).To(Equal(sim.Stopped))
		Expect(simulation.Engine().CurrentTime()).To(Equal(sim.VTimeInSec(5)))
	})
})

var _ = Describe("Simulation with services", func() {
	It("should log, trace, and record a run", func() {
		dir := GinkgoT().TempDir()
		output := filepath.Join(dir, "run")
		packetLog := new(bytes.Buffer)

		simulation := MakeBuilder().
			WithoutMonitoring().
			WithOutputFileName(output).
			WithTracing().
			WithPacketLog(packetLog).
			Build()

		a := simulation.CreateNode("A")
		b := simulation.CreateNode("B")
		connect(simulation, "Link", 5*network.Mbps, 0.002,
			a, b, "10.1.1.1", "10.1.1.2")
		simulation.RegisterHandler(b, netip.MustParseAddr("10.1.1.2"),
			func(*network.Device, *network.Packet) error { return nil })

		pkt := network.MakePacketBuilder().
			WithDst(netip.MustParseAddr("10.1.1.2"), 9).
			WithSize(100).
			Build()
		_, err := simulation.ScheduleSend(a, nil, pkt, netip.Addr{}, 1)
		Expect(err).ToNot(HaveOccurred())

		Expect(simulation.Run()).To(Succeed())

		Expect(simulation.Tracer().NumEvents()).To(BeNumerically(">", 0))
		Expect(simulation.Tracer().NumHops()).To(Equal(1))
		Expect(packetLog.String()).To(ContainSubstring("Link"))

		Expect(simulation.Terminate()).To(Succeed())
		_, err = os.Stat(output + ".sqlite3")
		Expect(err).ToNot(HaveOccurred())
	})

	It("should serve the monitor", func() {
		simulation := MakeBuilder().
			WithoutRecording().
			Build()
		defer func() {
			Expect(simulation.Terminate()).To(Succeed())
		}()

		Expect(simulation.Monitor()).ToNot(BeNil())
		Expect(simulation.Monitor().URL()).To(HavePrefix("http://localhost:"))

		simulation.CreateNode("A")
		_, err := simulation.Engine().Schedule(0.5, "Tick", nil)
		Expect(err).ToNot(HaveOccurred())

		Expect(simulation.RunUntil(1)).To(Succeed())
		Expect(simulation.Monitor()).ToNot(BeNil())
	})

	It("should reject inconsistent options", func() {
		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}).To(Panic())
		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithoutRecording().
				WithTracing().Build()
		}).To(Panic())
	})
})
