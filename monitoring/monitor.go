// Package monitoring turns a running simulation into a small web server so
// that it can be inspected and controlled from outside.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/sarchlab/netsim/monitoring/web"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// TraceController can turn tracing on and off while the simulation runs.
type TraceController interface {
	EnableTracing()
	StopTracing()
	IsTracing() bool
}

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	engine     sim.Engine
	nodes      []*network.Node
	channels   []network.Channel
	tracer     TraceController
	metrics    *Metrics
	portNumber int

	listener net.Listener

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterEngine registers the engine that is used in the simulation.
func (m *Monitor) RegisterEngine(e sim.Engine) {
	m.engine = e
}

// RegisterNode registers a node to be monitored. The transmit queues of the
// devices of the node are monitored as well.
func (m *Monitor) RegisterNode(n *network.Node) {
	m.nodes = append(m.nodes, n)
}

// RegisterChannel registers a channel to be monitored.
func (m *Monitor) RegisterChannel(c network.Channel) {
	m.channels = append(m.channels, c)
}

// RegisterTracer lets the monitor start and stop tracing.
func (m *Monitor) RegisterTracer(t TraceController) {
	m.tracer = t
}

// RegisterMetrics lets the monitor serve the metrics at /metrics.
func (m *Monitor) RegisterMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		id:        xid.New().String(),
		name:      name,
		startTime: time.Now(),
		total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/list_nodes", m.listNodes)
	r.HandleFunc("/api/node/{name}", m.listNodeDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/list_channels", m.listChannels)
	r.HandleFunc("/api/queues", m.listQueues)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/trace", m.traceStatus)
	r.HandleFunc("/api/trace/start", m.startTracing)
	r.HandleFunc("/api/trace/stop", m.stopTracing)
	r.Handle("/metrics", m.metrics.Handler())
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server with a custom port if wanted.
func (m *Monitor) StartServer() {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", m.URL())

	r := m.router()
	go func() {
		err := http.Serve(listener, r)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			dieOnErr(err)
		}
	}()
}

// URL returns the address of the monitoring page. It returns an empty string
// if the server is not started.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// StopServer closes the listener of the server.
func (m *Monitor) StopServer() error {
	if m.listener == nil {
		return nil
	}

	err := m.listener.Close()
	m.listener = nil

	return err
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.engine.CurrentTime()
	fmt.Fprintf(w, "{\"now\":%.10f}", now)
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.nodes))
	for _, n := range m.nodes {
		names = append(names, n.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listNodeDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	node := m.findNodeOr404(w, name)
	if node == nil {
		return
	}

	buf := bytes.NewBuffer(nil)
	var err error
	m.inspect(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(node)
		serializer.SetMaxDepth(1)
		err = serializer.Serialize(buf)
	})
	dieOnErr(err)

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

type fieldReq struct {
	NodeName  string `json:"node_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	node := m.findNodeOr404(w, req.NodeName)
	if node == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(node)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	buf := bytes.NewBuffer(nil)
	m.inspect(func() {
		err = serializer.Serialize(buf)
	})
	dieOnErr(err)

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

type channelRsp struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	DataRate   string   `json:"data_rate"`
	Delay      float64  `json:"delay"`
	Devices    []string `json:"devices"`
	Collisions int      `json:"collisions"`
}

func (m *Monitor) listChannels(w http.ResponseWriter, _ *http.Request) {
	var rsp []channelRsp
	m.inspect(func() {
		rsp = m.channelSnapshot()
	})

	writeJSON(w, rsp)
}

func (m *Monitor) channelSnapshot() []channelRsp {
	rsp := make([]channelRsp, 0, len(m.channels))

	for _, c := range m.channels {
		entry := channelRsp{
			Name:     c.Name(),
			Kind:     c.Kind().String(),
			DataRate: c.DataRate().String(),
			Delay:    float64(c.Delay()),
		}

		for _, d := range c.Devices() {
			entry.Devices = append(entry.Devices, d.Name())
		}

		if csma, ok := c.(*network.CSMAChannel); ok {
			entry.Collisions = csma.NumCollisions()
		}

		rsp = append(rsp, entry)
	}

	return rsp
}

func (m *Monitor) listQueues(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := m.queuesParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	type queueLevel struct {
		Buffer    string `json:"buffer"`
		Level     int    `json:"level"`
		Cap       int    `json:"cap"`
		HighWater int    `json:"high_water"`
	}

	levels := []queueLevel{}
	m.inspect(func() {
		for _, b := range m.sortAndSelectBuffers(sortMethod, limit, offset) {
			levels = append(levels, queueLevel{
				Buffer:    b.Name(),
				Level:     b.Size(),
				Cap:       b.Capacity(),
				HighWater: b.HighWater(),
			})
		}
	})

	writeJSON(w, levels)
}

func (*Monitor) queuesParseParams(
	r *http.Request,
) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}
	if sortMethod != "level" && sortMethod != "percent" {
		errStr := fmt.Sprintf(
			"Invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
		return "", 0, 0, errors.New(errStr)
	}

	limitNumber, err := intParam(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offsetNumber, err := intParam(r, "offset")
	if err != nil {
		return sortMethod, limitNumber, 0, err
	}

	if limitNumber < 0 || offsetNumber < 0 {
		return sortMethod, 0, 0, errors.New("limit and offset must not be negative")
	}

	return sortMethod, limitNumber, offsetNumber, nil
}

func intParam(r *http.Request, name string) (int, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return 0, nil
	}

	return strconv.Atoi(str)
}

func (m *Monitor) buffers() []sim.Buffer {
	var buffers []sim.Buffer

	for _, n := range m.nodes {
		for _, d := range n.Devices() {
			buffers = append(buffers, d.TxQueue())
		}
	}

	return buffers
}

func bufferPercent(b sim.Buffer) float64 {
	return float64(b.Size()) / float64(b.Capacity())
}

// sortAndSelectBuffers returns the transmit queues ordered by the sort
// method. A limit of 0 selects all the queues after the offset.
func (m *Monitor) sortAndSelectBuffers(
	sortMethod string,
	limit, offset int,
) []sim.Buffer {
	sortedBuffers := m.buffers()

	switch sortMethod {
	case "level":
		sort.SliceStable(sortedBuffers, func(i, j int) bool {
			sizeI := sortedBuffers[i].Size()
			sizeJ := sortedBuffers[j].Size()

			if sizeI != sizeJ {
				return sizeI > sizeJ
			}

			return bufferPercent(sortedBuffers[i]) > bufferPercent(sortedBuffers[j])
		})
	case "percent":
		sort.SliceStable(sortedBuffers, func(i, j int) bool {
			percentI := bufferPercent(sortedBuffers[i])
			percentJ := bufferPercent(sortedBuffers[j])

			if percentI != percentJ {
				return percentI > percentJ
			}

			return sortedBuffers[i].Size() > sortedBuffers[j].Size()
		})
	default:
		panic("Invalid sort method " + sortMethod)
	}

	if offset > len(sortedBuffers) {
		offset = len(sortedBuffers)
	}

	end := len(sortedBuffers)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return sortedBuffers[offset:end]
}

// inspect runs fn while the engine is between events.
func (m *Monitor) inspect(fn func()) {
	if m.engine == nil {
		fn()
		return
	}

	m.engine.Inspect(fn)
}

func (m *Monitor) findNodeOr404(
	w http.ResponseWriter,
	name string,
) *network.Node {
	for _, n := range m.nodes {
		if n.Name() == name {
			return n
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Node not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type traceRsp struct {
	Tracing bool `json:"tracing"`
}

func (m *Monitor) traceStatus(w http.ResponseWriter, _ *http.Request) {
	if !m.tracerOr404(w) {
		return
	}

	writeJSON(w, traceRsp{Tracing: m.tracer.IsTracing()})
}

func (m *Monitor) startTracing(w http.ResponseWriter, _ *http.Request) {
	if !m.tracerOr404(w) {
		return
	}

	m.tracer.EnableTracing()
	writeJSON(w, traceRsp{Tracing: m.tracer.IsTracing()})
}

func (m *Monitor) stopTracing(w http.ResponseWriter, _ *http.Request) {
	if !m.tracerOr404(w) {
		return
	}

	m.tracer.StopTracing()
	writeJSON(w, traceRsp{Tracing: m.tracer.IsTracing()})
}

func (m *Monitor) tracerOr404(w http.ResponseWriter) bool {
	if m.tracer != nil {
		return true
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Tracing is not enabled"))
	dieOnErr(err)

	return false
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
