package topology

import (
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
	"github.com/sarchlab/netsim/simulation"
)

var _ = Describe("Helpers", func() {
	var (
		s *simulation.Simulation
	)

	BeforeEach(func() {
		s = simulation.MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			Build()
	})

	AfterEach(func() {
		Expect(s.Terminate()).To(Succeed())
	})

	Context("point-to-point", func() {
		It("should create devices and a registered link", func() {
			a := s.CreateNode("A")
			b := s.CreateNode("B")
			c := s.CreateNode("C")

			h := NewPointToPointHelper()
			h.DataRate = 10 * network.Mbps
			h.Delay = 0.001

			link, devices, err := h.Install(s, "AB", a, b)
			Expect(err).ToNot(HaveOccurred())
			_, devices2, err := h.Install(s, "AC", a, c)
			Expect(err).ToNot(HaveOccurred())

			Expect(devices).To(HaveLen(2))
			Expect(devices[0].Name()).To(Equal("A.Eth0"))
			Expect(devices[1].Name()).To(Equal("B.Eth0"))
			Expect(devices2[0].Name()).To(Equal("A.Eth1"))
			Expect(link.DataRate()).To(Equal(10 * network.Mbps))
			Expect(link.Delay()).To(Equal(sim.VTimeInSec(0.001)))
			Expect(link.Validate()).To(Succeed())
			Expect(s.GetChannelByName("AB")).To(BeIdenticalTo(link))
		})

		It("should refuse a link from a node to itself", func() {
			a := s.CreateNode("A")

			_, _, err := NewPointToPointHelper().Install(s, "AA", a, a)

			Expect(err).To(HaveOccurred())
		})
	})

	Context("CSMA", func() {
		It("should attach all nodes to one medium", func() {
			nodes := []*network.Node{
				s.CreateNode("A"), s.CreateNode("B"), s.CreateNode("C"),
			}

			h := NewCSMAHelper()
			h.DataRate = 10 * network.Mbps
			h.Backoff.MaxRetries = 3

			lan, devices, err := h.Install(s, "LAN", nodes...)

			Expect(err).ToNot(HaveOccurred())
			Expect(devices).To(HaveLen(3))
			Expect(lan.Devices()).To(Equal(devices))
			Expect(lan.BackoffPolicy().MaxRetries).To(Equal(3))
			Expect(lan.Delay()).To(Equal(sim.VTimeInSec(6560e-9)))
		})
	})
})

var _ = Describe("AddressHelper", func() {
	var (
		s       *simulation.Simulation
		devices []*network.Device
	)

	BeforeEach(func() {
		s = simulation.MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			Build()

		nodes := []*network.Node{
			s.CreateNode("A"), s.CreateNode("B"),
			s.CreateNode("C"), s.CreateNode("D"),
		}
		_, devices, _ = NewCSMAHelper().Install(s, "LAN", nodes...)
	})

	AfterEach(func() {
		Expect(s.Terminate()).To(Succeed())
	})

	It("should continue the numbering across calls", func() {
		var h AddressHelper
		Expect(h.SetBase("10.1.1.0/24")).To(Succeed())

		first, err := h.Assign(devices[0], devices[1])
		Expect(err).ToNot(HaveOccurred())
		second, err := h.Assign(devices[2])
		Expect(err).ToNot(HaveOccurred())

		Expect(first).To(Equal([]netip.Addr{
			netip.MustParseAddr("10.1.1.1"),
			netip.MustParseAddr("10.1.1.2"),
		}))
		Expect(second[0]).To(Equal(netip.MustParseAddr("10.1.1.3")))
		Expect(devices[2].Address()).To(Equal(second[0]))
		Expect(devices[2].Node().IsLocal(second[0])).To(BeTrue())
	})

	It("should restart the numbering with a new base", func() {
		var h AddressHelper
		Expect(h.SetBase("10.1.1.0/24")).To(Succeed())
		_, err := h.Assign(devices[0])
		Expect(err).ToNot(HaveOccurred())

		Expect(h.SetBase("10.1.2.7/24")).To(Succeed())
		addrs, err := h.Assign(devices[1])

		Expect(err).ToNot(HaveOccurred())
		Expect(h.Base().String()).To(Equal("10.1.2.0/24"))
		Expect(addrs[0]).To(Equal(netip.MustParseAddr("10.1.2.1")))
	})

	It("should move to the next network", func() {
		var h AddressHelper
		Expect(h.SetBase("10.1.255.0/24")).To(Succeed())

		Expect(h.NewNetwork()).To(Succeed())

		Expect(h.Base().String()).To(Equal("10.2.0.0/24"))
		addr, err := h.Allocate()
		Expect(err).ToNot(HaveOccurred())
		Expect(addr).To(Equal(netip.MustParseAddr("10.2.0.1")))
	})

	It("should not hand out the broadcast address", func() {
		var h AddressHelper
		Expect(h.SetBase("192.168.0.0/30")).To(Succeed())

		_, err := h.Assign(devices[0], devices[1])
		Expect(err).ToNot(HaveOccurred())

		_, err = h.Assign(devices[2])
		Expect(err).To(HaveOccurred())
	})

	It("should reject bad bases", func() {
		var h AddressHelper

		Expect(h.SetBase("10.1.1.0")).ToNot(Succeed())
		Expect(h.SetBase("2001:db8::/64")).ToNot(Succeed())
		Expect(h.SetBase("10.1.1.0/31")).ToNot(Succeed())

		_, err := h.Allocate()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("GridPositionAllocator", func() {
	It("should fill rows first", func() {
		a := &GridPositionAllocator{DeltaX: 5, DeltaY: 10, GridWidth: 5}

		var got []network.Position
		for i := 0; i < 7; i++ {
			got = append(got, a.Next())
		}

		Expect(got[0]).To(Equal(network.Position{X: 0, Y: 0}))
		Expect(got[4]).To(Equal(network.Position{X: 20, Y: 0}))
		Expect(got[6]).To(Equal(network.Position{X: 5, Y: 10}))
	})

	It("should fill columns first", func() {
		a := &GridPositionAllocator{
			MinX: 1, MinY: 2, DeltaX: 5, DeltaY: 10,
			GridWidth: 2, Layout: ColumnFirst,
		}

		a.Next()
		second := a.Next()
		third := a.Next()

		Expect(second).To(Equal(network.Position{X: 1, Y: 12}))
		Expect(third).To(Equal(network.Position{X: 6, Y: 2}))
	})

	It("should parse layouts", func() {
		l, err := ParseGridLayout("columnFirst")
		Expect(err).ToNot(HaveOccurred())
		Expect(l).To(Equal(ColumnFirst))

		_, err = ParseGridLayout("diagonal")
		Expect(err).To(HaveOccurred())
	})
})
