package echo

import (
	"encoding/binary"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Client", func() {
	var (
		mockCtrl  *gomock.Controller
		engine    *sim.SerialEngine
		transport *MockTransport
		node      *network.Node
		remote    netip.Addr
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = sim.NewSerialEngine()
		transport = NewMockTransport(mockCtrl)
		node = network.NewNode(0, "N0", engine)
		remote = netip.MustParseAddr("10.1.2.2")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	build := func(maxPackets int, stop sim.VTimeInSec) *Client {
		return MakeClientBuilder().
			WithEngine(engine).
			WithTransport(transport).
			WithNode(node).
			WithRemote(remote, 9).
			WithMaxPackets(maxPackets).
			WithInterval(1).
			WithPacketSize(1024).
			WithStartTime(2).
			WithStopTime(stop).
			Build("EchoClient")
	}

	It("should send requests at the interval", func() {
		client := build(3, 10)

		transport.EXPECT().Bind(node, netip.IPv4Unspecified(), uint16(49153), gomock.Any())
		transport.EXPECT().Unbind(node, netip.IPv4Unspecified(), uint16(49153))

		var sendTimes []sim.VTimeInSec
		var seqs []uint32
		transport.EXPECT().
			Send(node, gomock.Any()).
			DoAndReturn(func(_ *network.Node, pkt *network.Packet) error {
				Expect(pkt.Dst).To(Equal(remote))
				Expect(pkt.DstPort).To(Equal(uint16(9)))
				Expect(pkt.SrcPort).To(Equal(uint16(49153)))
				Expect(pkt.Size).To(Equal(1024))
				sendTimes = append(sendTimes, engine.CurrentTime())
				seqs = append(seqs, binary.BigEndian.Uint32(pkt.Payload))
				return nil
			}).
			Times(3)

		Expect(client.Install()).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(sendTimes).To(Equal([]sim.VTimeInSec{2, 3, 4}))
		Expect(seqs).To(Equal([]uint32{0, 1, 2}))
		Expect(client.NumSent()).To(Equal(3))
	})

	It("should stop sending at the stop time", func() {
		client := build(100, 4.5)

		transport.EXPECT().Bind(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
		transport.EXPECT().Unbind(gomock.Any(), gomock.Any(), gomock.Any())
		transport.EXPECT().Send(gomock.Any(), gomock.Any()).Times(3)

		Expect(client.Install()).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(client.NumSent()).To(Equal(3))
		Expect(engine.CurrentTime()).To(Equal(sim.VTimeInSec(4.5)))
	})

	It("should measure round-trip times", func() {
		client := build(1, 10)

		var handler network.PacketHandler
		transport.EXPECT().
			Bind(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Do(func(_ *network.Node, _ netip.Addr, _ uint16, h network.PacketHandler) {
				handler = h
			})
		transport.EXPECT().Unbind(gomock.Any(), gomock.Any(), gomock.Any())
		transport.EXPECT().
			Send(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ *network.Node, pkt *network.Packet) error {
				reply := pkt.Clone()
				_, err := engine.ScheduleAfter(0.25, "Reply", func() error {
					return handler(nil, reply)
				})
				return err
			})

		Expect(client.Install()).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(client.NumReceived()).To(Equal(1))
		Expect(client.RoundTripTimes()[0]).To(BeNumerically("~", 0.25, 1e-12))
	})

	It("should ignore unknown replies", func() {
		client := build(1, 10)

		var handler network.PacketHandler
		transport.EXPECT().
			Bind(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Do(func(_ *network.Node, _ netip.Addr, _ uint16, h network.PacketHandler) {
				handler = h
			})
		transport.EXPECT().Unbind(gomock.Any(), gomock.Any(), gomock.Any())
		transport.EXPECT().Send(gomock.Any(), gomock.Any())

		_, err := engine.Schedule(3, "Stray", func() error {
			stray := network.MakePacketBuilder().WithPayload([]byte{0, 0, 0, 42}).Build()
			Expect(handler(nil, stray)).To(Succeed())
			return handler(nil, network.MakePacketBuilder().Build())
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(client.Install()).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(client.NumReceived()).To(Equal(0))
	})

	It("should count requests that do not fit in the queue", func() {
		client := build(2, 10)

		transport.EXPECT().Bind(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
		transport.EXPECT().Unbind(gomock.Any(), gomock.Any(), gomock.Any())
		transport.EXPECT().Send(gomock.Any(), gomock.Any()).Return(network.ErrQueueFull)
		transport.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

		Expect(client.Install()).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(client.NumDropped()).To(Equal(1))
		Expect(client.NumSent()).To(Equal(1))
	})
})
