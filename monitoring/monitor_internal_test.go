package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
)

type sampleTracer struct {
	tracing bool
}

func (t *sampleTracer) EnableTracing()  { t.tracing = true }
func (t *sampleTracer) StopTracing()    { t.tracing = false }
func (t *sampleTracer) IsTracing() bool { return t.tracing }

var _ = Describe("Monitor", func() {
	var (
		engine *sim.SerialEngine
		m      *Monitor
		a, b   *network.Node
		link   *network.PointToPointChannel
	)

	get := func(url string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rec := httptest.NewRecorder()
		m.router().ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		engine = sim.NewSerialEngine()

		a = network.NewNode(0, "A", engine)
		b = network.NewNode(1, "B", engine)
		devA := a.CreateDeviceWithQueueSize("Eth0", 4)
		devB := b.CreateDeviceWithQueueSize("Eth0", 8)

		link = network.MakePointToPointBuilder().
			WithEngine(engine).
			Build("Link")
		Expect(link.Attach(devA)).To(Succeed())
		Expect(link.Attach(devB)).To(Succeed())

		devA.SetAddress(netip.MustParseAddr("10.0.0.1"))
		devB.SetAddress(netip.MustParseAddr("10.0.0.2"))

		m = NewMonitor()
		m.RegisterEngine(engine)
		m.RegisterNode(a)
		m.RegisterNode(b)
		m.RegisterChannel(link)
	})

	It("should report the current time", func() {
		_, err := engine.Schedule(1.5, "Tick", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		rec := get("/api/now")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal(`{"now":1.5000000000}`))
	})

	It("should list nodes", func() {
		rec := get("/api/list_nodes")

		var names []string
		Expect(json.Unmarshal(rec.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(Equal([]string{"A", "B"}))
	})

	It("should return 404 for unknown nodes", func() {
		rec := get("/api/node/C")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should list channels", func() {
		rec := get("/api/list_channels")

		var channels []channelRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &channels)).To(Succeed())
		Expect(channels).To(HaveLen(1))
		Expect(channels[0].Name).To(Equal("Link"))
		Expect(channels[0].Kind).To(Equal(network.PointToPointMedium.String()))
		Expect(channels[0].Devices).To(Equal([]string{"A.Eth0", "B.Eth0"}))
	})

	It("should collect the transmit queues of all devices", func() {
		Expect(m.buffers()).To(HaveLen(2))
	})

	Context("when listing queues", func() {
		BeforeEach(func() {
			for i := 0; i < 3; i++ {
				pkt := network.MakePacketBuilder().
					WithDst(netip.MustParseAddr("10.0.0.2"), 9).
					WithSize(100).
					Build()
				Expect(a.Devices()[0].Send(pkt, netip.Addr{})).To(Succeed())
			}

			for i := 0; i < 4; i++ {
				pkt := network.MakePacketBuilder().
					WithDst(netip.MustParseAddr("10.0.0.1"), 9).
					WithSize(100).
					Build()
				Expect(b.Devices()[0].Send(pkt, netip.Addr{})).To(Succeed())
			}
		})

		It("should sort by percent", func() {
			buffers := m.sortAndSelectBuffers("percent", 0, 0)

			Expect(buffers).To(HaveLen(2))
			Expect(buffers[0].Name()).To(Equal("A.Eth0.TxQueue"))
		})

		It("should sort by level", func() {
			buffers := m.sortAndSelectBuffers("level", 0, 0)

			Expect(buffers[0].Name()).To(Equal("B.Eth0.TxQueue"))
		})

		It("should apply limit and offset", func() {
			Expect(m.sortAndSelectBuffers("level", 1, 0)).To(HaveLen(1))
			Expect(m.sortAndSelectBuffers("level", 1, 1)[0].Name()).
				To(Equal("A.Eth0.TxQueue"))
			Expect(m.sortAndSelectBuffers("level", 0, 5)).To(BeEmpty())
		})

		It("should serve the queues", func() {
			rec := get("/api/queues?sort=level&limit=1")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal(
				`[{"buffer":"B.Eth0.TxQueue","level":4,"cap":8,"high_water":4}]`))
		})

		It("should reject unknown sort methods", func() {
			rec := get("/api/queues?sort=name")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	It("should read queues and channels while the engine runs", func() {
		devA := a.Devices()[0]
		for i := 0; i < 200; i++ {
			_, err := engine.Schedule(sim.VTimeInSec(i)*1e-3, "Send", func() error {
				pkt := network.MakePacketBuilder().
					WithDst(netip.MustParseAddr("10.0.0.2"), 9).
					WithSize(1000).
					Build()
				_ = devA.Send(pkt, netip.Addr{})
				return nil
			})
			Expect(err).ToNot(HaveOccurred())
		}

		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- engine.Run()
		}()

		for i := 0; i < 20; i++ {
			Expect(get("/api/queues").Code).To(Equal(http.StatusOK))
			Expect(get("/api/list_channels").Code).To(Equal(http.StatusOK))
		}

		Eventually(done).Should(Receive(BeNil()))
	})

	It("should read queues while the engine is paused", func() {
		engine.Pause()
		defer engine.Continue()

		rec := get("/api/queues")

		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("Run", 10)
		bar.SetInProgress(3)
		bar.AdvanceTo(4)
		bar.AdvanceTo(2)

		Expect(bar.ID()).ToNot(BeEmpty())
		Expect(bar.Finished()).To(Equal(uint64(4)))

		bar.AdvanceTo(20)
		Expect(bar.Finished()).To(Equal(bar.Total()))

		rec := get("/api/progress")
		Expect(rec.Body.String()).To(ContainSubstring(`"name":"Run"`))
		Expect(rec.Body.String()).To(ContainSubstring(`"finished":10`))
		Expect(rec.Body.String()).To(ContainSubstring(`"in_progress":3`))

		m.CompleteProgressBar(bar)
		Expect(m.progressBars).To(BeEmpty())
	})

	It("should return 404 for tracing without a tracer", func() {
		rec := get("/api/trace/start")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should toggle tracing", func() {
		tracer := &sampleTracer{}
		m.RegisterTracer(tracer)

		rec := get("/api/trace/start")
		Expect(rec.Body.String()).To(Equal(`{"tracing":true}`))
		Expect(tracer.tracing).To(BeTrue())

		rec = get("/api/trace/stop")
		Expect(rec.Body.String()).To(Equal(`{"tracing":false}`))
		Expect(tracer.tracing).To(BeFalse())
	})

	It("should serve the web page", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})

	It("should start and stop the server", func() {
		m.StartServer()

		Expect(m.URL()).To(HavePrefix("http://localhost:"))
		Expect(m.StopServer()).To(Succeed())
		Expect(m.URL()).To(BeEmpty())
	})
})
