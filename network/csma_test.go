package network

import (
	"errors"
	"fmt"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/sim"
)

var _ = Describe("CSMAChannel", func() {
	var (
		engine   *sim.SerialEngine
		channel  *CSMAChannel
		nodes    []*Node
		devs     []*Device
		addrs    []netip.Addr
		arrivals [][]arrival
		failures [][]error
	)

	build := func(policy BackoffPolicy) {
		channel = MakeCSMABuilder().
			WithEngine(engine).
			WithDataRate(10 * Mbps).
			WithDelay(6560e-9).
			WithBackoffPolicy(policy).
			Build("LAN")

		nodes = nil
		devs = nil
		addrs = nil
		arrivals = make([][]arrival, 3)
		failures = make([][]error, 3)

		for i := 0; i < 3; i++ {
			i := i
			n := NewNode(i, fmt.Sprintf("N%d", i), engine)
			d := n.CreateDevice("Eth0")
			addr := netip.AddrFrom4([4]byte{10, 1, 2, byte(i + 1)})
			d.SetAddress(addr)
			Expect(channel.Attach(d)).To(Succeed())

			n.RegisterHandler(addr, recordArrivals(engine, &arrivals[i]))
			n.RegisterHandler(BroadcastAddress, recordArrivals(engine, &arrivals[i]))
			n.OnDeliveryFailure(func(pkt *Packet, err error) {
				failures[i] = append(failures[i], err)
			})

			nodes = append(nodes, n)
			devs = append(devs, d)
			addrs = append(addrs, addr)
		}
	}

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
	})

	packet := func(size int, dst netip.Addr) *Packet {
		return MakePacketBuilder().WithSize(size).WithDst(dst, 9).Build()
	}

	It("should deliver unicast frames only to the addressed device", func() {
		build(DefaultBackoffPolicy())

		sendAt(engine, 1, devs[0], packet(100, addrs[2]), addrs[2])
		Expect(engine.Run()).To(Succeed())

		tx := float64((10 * Mbps).TransmissionTime(100))
		Expect(arrivals[1]).To(BeEmpty())
		Expect(arrivals[2]).To(HaveLen(1))
		Expect(arrivals[2][0].time).To(BeNumerically("~", 1+tx+6560e-9, 1e-12))
	})

	It("should deliver broadcast frames to every other device", func() {
		build(DefaultBackoffPolicy())

		sendAt(engine, 1, devs[0], packet(64, BroadcastAddress), BroadcastAddress)
		Expect(engine.Run()).To(Succeed())

		Expect(arrivals[0]).To(BeEmpty())
		Expect(arrivals[1]).To(HaveLen(1))
		Expect(arrivals[2]).To(HaveLen(1))
	})

	It("should drop both packets of a collision when no retry is allowed", func() {
		policy := DefaultBackoffPolicy()
		policy.MaxRetries = 0
		build(policy)

		sendAt(engine, 1, devs[0], packet(100, addrs[2]), addrs[2])
		sendAt(engine, 1, devs[1], packet(100, addrs[2]), addrs[2])
		Expect(engine.Run()).To(Succeed())

		Expect(channel.NumCollisions()).To(Equal(1))
		Expect(arrivals[2]).To(BeEmpty())

		for i := 0; i < 2; i++ {
			Expect(failures[i]).To(HaveLen(1))

			var collision *PacketCollisionDrop
			Expect(errors.As(failures[i][0], &collision)).To(BeTrue())
			Expect(collision.Channel).To(Equal("LAN"))
			Expect(devs[i].Stats().Collisions).To(Equal(1))
			Expect(devs[i].Stats().Dropped).To(Equal(1))
		}
	})

	It("should collide within the vulnerable window", func() {
		policy := DefaultBackoffPolicy()
		policy.MaxRetries = 0
		build(policy)

		sendAt(engine, 1, devs[0], packet(100, addrs[2]), addrs[2])
		sendAt(engine, 1+3e-6, devs[1], packet(100, addrs[2]), addrs[2])
		Expect(engine.Run()).To(Succeed())

		Expect(channel.NumCollisions()).To(Equal(1))
		Expect(arrivals[2]).To(BeEmpty())
	})

	It("should retry collided packets until both are delivered", func() {
		build(DefaultBackoffPolicy())

		sendAt(engine, 1, devs[0], packet(100, addrs[2]), addrs[2])
		sendAt(engine, 1, devs[1], packet(100, addrs[2]), addrs[2])
		Expect(engine.Run()).To(Succeed())

		Expect(channel.NumCollisions()).To(BeNumerically(">=", 1))
		Expect(arrivals[2]).To(HaveLen(2))
		Expect(failures[0]).To(BeEmpty())
		Expect(failures[1]).To(BeEmpty())

		tx := float64((10 * Mbps).TransmissionTime(100))
		gap := float64(arrivals[2][1].time - arrivals[2][0].time)
		Expect(gap).To(BeNumerically(">=", tx))
	})

	It("should replay collisions identically", func() {
		run := func(seed uint64) []sim.VTimeInSec {
			engine = sim.NewSerialEngine()
			build(DefaultBackoffPolicy())
			for _, n := range nodes {
				n.SetSeed(seed)
			}

			sendAt(engine, 1, devs[0], packet(100, addrs[2]), addrs[2])
			sendAt(engine, 1, devs[1], packet(100, addrs[2]), addrs[2])
			Expect(engine.Run()).To(Succeed())

			var times []sim.VTimeInSec
			for _, a := range arrivals[2] {
				times = append(times, a.time)
			}

			return times
		}

		first := run(DefaultSeed)
		Expect(first).To(HaveLen(2))

		// Streams created in between must not shift later runs.
		run(7)

		Expect(run(DefaultSeed)).To(Equal(first))
	})

	It("should defer when the carrier is sensed", func() {
		build(DefaultBackoffPolicy())

		first := packet(1024, addrs[2])
		second := packet(1024, addrs[2])
		sendAt(engine, 1, devs[0], first, addrs[2])
		sendAt(engine, 1.0005, devs[1], second, addrs[2])
		Expect(engine.Run()).To(Succeed())

		Expect(channel.NumCollisions()).To(Equal(0))
		Expect(devs[1].Stats().Deferrals).To(BeNumerically(">=", 1))
		Expect(arrivals[2]).To(HaveLen(2))
		Expect(arrivals[2][0].pkt).To(BeIdenticalTo(first))
		Expect(arrivals[2][1].pkt).To(BeIdenticalTo(second))
	})

	It("should sense the carrier only after the propagation delay", func() {
		build(DefaultBackoffPolicy())

		sendAt(engine, 1, devs[0], packet(1024, addrs[2]), addrs[2])

		var early, late bool
		_, err := engine.Schedule(1+1e-6, "Probe", func() error {
			early = channel.Busy(devs[1])
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		_, err = engine.Schedule(1+1e-5, "Probe", func() error {
			late = channel.Busy(devs[1])
			return nil
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(engine.Run()).To(Succeed())

		Expect(early).To(BeFalse())
		Expect(late).To(BeTrue())
	})

	It("should let a sender continue with its next packet", func() {
		build(DefaultBackoffPolicy())

		sendAt(engine, 1, devs[0], packet(100, addrs[2]), addrs[2])
		sendAt(engine, 1, devs[0], packet(100, addrs[2]), addrs[2])
		Expect(engine.Run()).To(Succeed())

		tx := float64((10 * Mbps).TransmissionTime(100))
		Expect(arrivals[2]).To(HaveLen(2))
		Expect(arrivals[2][1].time).To(BeNumerically("~", 1+2*tx+6560e-9, 1e-12))
		Expect(devs[0].Stats().Deferrals).To(Equal(0))
	})
})

var _ = Describe("BackoffPolicy", func() {
	It("should grow the window and cap it", func() {
		p := DefaultBackoffPolicy()

		Expect(p.ceiling(1)).To(Equal(1))
		Expect(p.ceiling(3)).To(Equal(7))
		Expect(p.ceiling(10)).To(Equal(1023))
		Expect(p.ceiling(15)).To(Equal(1023))
	})

	It("should give up after the maximum retries", func() {
		p := DefaultBackoffPolicy()

		Expect(p.Exhausted(16)).To(BeFalse())
		Expect(p.Exhausted(17)).To(BeTrue())
	})

	It("should wait for the minimum slots when the window is empty", func() {
		p := BackoffPolicy{SlotTime: 1, MinSlots: 2, MaxSlots: 1, MaxRetries: 1}

		Expect(p.Delay(1, nil)).To(BeNumerically("==", 2))
	})
})
