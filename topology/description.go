package topology

import (
	"encoding/json"
	"fmt"
	"math"
	"net/netip"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/sim"
	"gopkg.in/yaml.v3"
)

// Duration is a virtual time written as a Go duration string, such as "2ms"
// or "6560ns". A plain number is read as seconds.
type Duration sim.VTimeInSec

// UnmarshalYAML parses a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	t, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*d = Duration(t)

	return nil
}

// MarshalYAML writes the duration as a Go duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalJSON parses a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	t, err := parseDuration(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}

	*d = Duration(t)

	return nil
}

// MarshalJSON writes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(math.Round(float64(d) * float64(time.Second))).String()
}

func parseDuration(s string) (sim.VTimeInSec, error) {
	s = strings.TrimSpace(s)

	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		dur, durErr := time.ParseDuration(s)
		if durErr != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, durErr)
		}

		seconds = dur.Seconds()
	}

	if !finiteNonNegative(seconds) {
		return 0, fmt.Errorf("invalid duration %q: must be finite and not negative", s)
	}

	return sim.VTimeInSec(seconds), nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// NewDuration returns a pointer to a duration, for the optional fields of a
// description.
func NewDuration(t sim.VTimeInSec) *Duration {
	d := Duration(t)
	return &d
}

// Rate is a data rate written as a string, such as "5Mbps".
type Rate network.DataRate

// UnmarshalYAML parses a data rate string.
func (r *Rate) UnmarshalYAML(value *yaml.Node) error {
	rate, err := network.ParseDataRate(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*r = Rate(rate)

	return nil
}

// MarshalYAML writes the data rate as a string.
func (r Rate) MarshalYAML() (interface{}, error) {
	return network.DataRate(r).String(), nil
}

// UnmarshalJSON parses a data rate string.
func (r *Rate) UnmarshalJSON(b []byte) error {
	rate, err := network.ParseDataRate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}

	*r = Rate(rate)

	return nil
}

// MarshalJSON writes the data rate as a string.
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(network.DataRate(r).String())
}

// MediumDesc gives the parameters of a channel. A zero data rate or queue
// size and a missing delay take the defaults of the network. A delay of 0 is
// kept.
type MediumDesc struct {
	DataRate  Rate      `json:"dataRate,omitempty" yaml:"dataRate,omitempty"`
	Delay     *Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
	QueueSize int       `json:"queueSize,omitempty" yaml:"queueSize,omitempty"`
}

// BackoffDesc overrides the backoff policy of shared media.
type BackoffDesc struct {
	SlotTime        Duration `json:"slotTime,omitempty" yaml:"slotTime,omitempty"`
	MinSlots        int      `json:"minSlots,omitempty" yaml:"minSlots,omitempty"`
	MaxSlots        int      `json:"maxSlots,omitempty" yaml:"maxSlots,omitempty"`
	CeilingExponent int      `json:"ceilingExponent,omitempty" yaml:"ceilingExponent,omitempty"`
	MaxRetries      *int     `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
}

// DefaultsDesc holds the parameters shared by all links and LANs.
type DefaultsDesc struct {
	PointToPoint MediumDesc   `json:"pointToPoint" yaml:"pointToPoint"`
	CSMA         MediumDesc   `json:"csma" yaml:"csma"`
	Backoff      *BackoffDesc `json:"backoff,omitempty" yaml:"backoff,omitempty"`
}

// LinkDesc is a point-to-point link between two nodes.
type LinkDesc struct {
	MediumDesc `json:",inline" yaml:",inline"`

	Name  string   `json:"name" yaml:"name"`
	Nodes []string `json:"nodes" yaml:"nodes"`
}

// LANDesc is a shared medium connecting a group of nodes.
type LANDesc struct {
	MediumDesc `json:",inline" yaml:",inline"`

	Name  string   `json:"name" yaml:"name"`
	Nodes []string `json:"nodes" yaml:"nodes"`
}

// SubnetDesc assigns addresses from a subnet to the devices of the listed
// channels, in order. Devices of a channel are numbered in the order in
// which the nodes are listed for the channel.
type SubnetDesc struct {
	Base     string   `json:"base" yaml:"base"`
	Channels []string `json:"channels" yaml:"channels"`
}

// EchoServerDesc is an echo server application.
type EchoServerDesc struct {
	Name  string   `json:"name" yaml:"name"`
	Node  string   `json:"node" yaml:"node"`
	Port  uint16   `json:"port,omitempty" yaml:"port,omitempty"`
	Start Duration `json:"start,omitempty" yaml:"start,omitempty"`
	Stop  Duration `json:"stop,omitempty" yaml:"stop,omitempty"`
}

// EchoClientDesc is an echo client application. Remote is either an IP
// address or the name of a node, whose first address is used.
type EchoClientDesc struct {
	Name       string   `json:"name" yaml:"name"`
	Node       string   `json:"node" yaml:"node"`
	Remote     string   `json:"remote" yaml:"remote"`
	Port       uint16   `json:"port,omitempty" yaml:"port,omitempty"`
	MaxPackets int      `json:"maxPackets,omitempty" yaml:"maxPackets,omitempty"`
	Interval   Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	PacketSize int      `json:"packetSize,omitempty" yaml:"packetSize,omitempty"`
	Start      Duration `json:"start,omitempty" yaml:"start,omitempty"`
	Stop       Duration `json:"stop,omitempty" yaml:"stop,omitempty"`
}

// EchoDesc lists the echo applications.
type EchoDesc struct {
	Servers []EchoServerDesc `json:"servers,omitempty" yaml:"servers,omitempty"`
	Clients []EchoClientDesc `json:"clients,omitempty" yaml:"clients,omitempty"`
}

// GridDesc describes a GridPositionAllocator.
type GridDesc struct {
	MinX      float64 `json:"minX" yaml:"minX"`
	MinY      float64 `json:"minY" yaml:"minY"`
	DeltaX    float64 `json:"deltaX" yaml:"deltaX"`
	DeltaY    float64 `json:"deltaY" yaml:"deltaY"`
	GridWidth int     `json:"gridWidth" yaml:"gridWidth"`
	Layout    string  `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// PositionDesc is a fixed position of a node.
type PositionDesc struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z,omitempty" yaml:"z,omitempty"`
}

// MobilityDesc places the nodes. The nodes in Order are placed on the grid
// one after another, and a node may appear more than once. Positions are
// applied last.
type MobilityDesc struct {
	Grid      *GridDesc               `json:"grid,omitempty" yaml:"grid,omitempty"`
	Order     []string                `json:"order,omitempty" yaml:"order,omitempty"`
	Positions map[string]PositionDesc `json:"positions,omitempty" yaml:"positions,omitempty"`
}

// Description is the whole network of a simulation.
type Description struct {
	Name     string       `json:"name" yaml:"name"`
	StopTime Duration     `json:"stopTime,omitempty" yaml:"stopTime,omitempty"`
	Seed     uint64       `json:"seed,omitempty" yaml:"seed,omitempty"`
	Routing  string       `json:"routing,omitempty" yaml:"routing,omitempty"`
	Defaults DefaultsDesc `json:"defaults" yaml:"defaults"`
	Nodes    []string     `json:"nodes" yaml:"nodes"`
	Links    []LinkDesc   `json:"links,omitempty" yaml:"links,omitempty"`
	LANs     []LANDesc    `json:"lans,omitempty" yaml:"lans,omitempty"`
	Subnets  []SubnetDesc `json:"subnets,omitempty" yaml:"subnets,omitempty"`
	Echo     EchoDesc     `json:"echo" yaml:"echo"`
	Mobility MobilityDesc `json:"mobility" yaml:"mobility"`
}

// Routing modes.
const (
	RoutingGlobal = "global"
	RoutingNone   = "none"
)

// ReadDescription deserializes a description. If dict is empty, the file
// whose name is given is read. JSON is used for files ending with .json and
// YAML for everything else.
func ReadDescription(filename string, dict []byte) (*Description, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	desc := Description{}

	if isJSON(filename) {
		err = json.Unmarshal(dict, &desc)
	} else {
		err = yaml.Unmarshal(dict, &desc)
	}

	if err != nil {
		return nil, fmt.Errorf("reading description %s: %w", filename, err)
	}

	return &desc, nil
}

// WriteToFile stores the description into the file whose name is given.
// JSON is used for files ending with .json and YAML for everything else.
func (d *Description) WriteToFile(filename string) error {
	bytes, err := d.Encode(isJSON(filename))
	if err != nil {
		return err
	}

	return os.WriteFile(filename, bytes, 0o644)
}

// Encode serializes the description as JSON or YAML.
func (d *Description) Encode(asJSON bool) ([]byte, error) {
	if asJSON {
		return json.MarshalIndent(d, "", "\t")
	}

	return yaml.Marshal(d)
}

func isJSON(filename string) bool {
	return strings.EqualFold(path.Ext(filename), ".json")
}

// Validate checks that the description refers only to declared nodes and
// channels, that every name is unique and valid, and that every parameter is
// in range. A description that passes Validate builds without panics.
func (d *Description) Validate() error {
	nodes := make(map[string]bool)
	for _, n := range d.Nodes {
		if err := sim.ValidateName(n); err != nil {
			return fmt.Errorf("node %q: %w", n, err)
		}

		if nodes[n] {
			return fmt.Errorf("node %s is declared twice", n)
		}
		nodes[n] = true
	}

	if err := d.Defaults.validate(); err != nil {
		return err
	}

	channels := make(map[string]bool)
	checkChannel := func(kind, name string, members []string) error {
		if name == "" {
			return fmt.Errorf("%s without a name", kind)
		}

		if err := sim.ValidateName(name); err != nil {
			return fmt.Errorf("%s %q: %w", kind, name, err)
		}

		if channels[name] {
			return fmt.Errorf("channel %s is declared twice", name)
		}
		channels[name] = true

		for _, m := range members {
			if !nodes[m] {
				return fmt.Errorf("%s %s refers to unknown node %s", kind, name, m)
			}
		}

		return nil
	}

	for _, l := range d.Links {
		if len(l.Nodes) != 2 {
			return fmt.Errorf("link %s must connect exactly 2 nodes", l.Name)
		}

		if err := checkChannel("link", l.Name, l.Nodes); err != nil {
			return err
		}

		if err := l.MediumDesc.validate(); err != nil {
			return fmt.Errorf("link %s: %w", l.Name, err)
		}
	}

	for _, l := range d.LANs {
		if len(l.Nodes) == 0 {
			return fmt.Errorf("lan %s has no nodes", l.Name)
		}

		if err := checkChannel("lan", l.Name, l.Nodes); err != nil {
			return err
		}

		if err := l.MediumDesc.validate(); err != nil {
			return fmt.Errorf("lan %s: %w", l.Name, err)
		}
	}

	if err := d.validateSubnets(channels); err != nil {
		return err
	}

	if err := d.validateApplications(nodes); err != nil {
		return err
	}

	return d.validateMobility(nodes)
}

func (d *DefaultsDesc) validate() error {
	if err := d.PointToPoint.validate(); err != nil {
		return fmt.Errorf("point-to-point defaults: %w", err)
	}

	if err := d.CSMA.validate(); err != nil {
		return fmt.Errorf("csma defaults: %w", err)
	}

	if d.Backoff == nil {
		return nil
	}

	p := network.DefaultBackoffPolicy()
	applyBackoff(&p, d.Backoff)
	if err := p.Validate(); err != nil {
		return fmt.Errorf("backoff defaults: %w", err)
	}

	return nil
}

func (m MediumDesc) validate() error {
	if !finiteNonNegative(float64(m.DataRate)) {
		return fmt.Errorf("data rate must be finite and not negative")
	}

	if m.Delay != nil && !finiteNonNegative(float64(*m.Delay)) {
		return fmt.Errorf("delay must be finite and not negative")
	}

	if m.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative")
	}

	return nil
}

func (d *Description) validateSubnets(channels map[string]bool) error {
	assigned := make(map[string]string)
	prefixes := make([]netip.Prefix, 0, len(d.Subnets))

	for _, s := range d.Subnets {
		prefix, err := netip.ParsePrefix(s.Base)
		if err != nil {
			return fmt.Errorf("subnet %q: %w", s.Base, err)
		}

		for _, other := range prefixes {
			if other.Overlaps(prefix) {
				return fmt.Errorf("subnet %s overlaps subnet %s", s.Base, other)
			}
		}
		prefixes = append(prefixes, prefix)

		for _, c := range s.Channels {
			if !channels[c] {
				return fmt.Errorf("subnet %s refers to unknown channel %s",
					s.Base, c)
			}

			if base, found := assigned[c]; found {
				return fmt.Errorf("channel %s is in subnets %s and %s",
					c, base, s.Base)
			}
			assigned[c] = s.Base
		}
	}

	return nil
}

func (d *Description) validateApplications(nodes map[string]bool) error {
	switch d.Routing {
	case "", RoutingGlobal, RoutingNone:
	default:
		return fmt.Errorf("unknown routing mode %q", d.Routing)
	}

	for _, s := range d.Echo.Servers {
		if err := sim.ValidateName(s.Name); err != nil {
			return fmt.Errorf("echo server %q: %w", s.Name, err)
		}

		if !nodes[s.Node] {
			return fmt.Errorf("echo server %s is on unknown node %s",
				s.Name, s.Node)
		}

		if err := validateActivePeriod(s.Start, s.Stop); err != nil {
			return fmt.Errorf("echo server %s: %w", s.Name, err)
		}
	}

	for _, c := range d.Echo.Clients {
		if err := sim.ValidateName(c.Name); err != nil {
			return fmt.Errorf("echo client %q: %w", c.Name, err)
		}

		if !nodes[c.Node] {
			return fmt.Errorf("echo client %s is on unknown node %s",
				c.Name, c.Node)
		}

		if err := validateActivePeriod(c.Start, c.Stop); err != nil {
			return fmt.Errorf("echo client %s: %w", c.Name, err)
		}

		if c.MaxPackets < 0 || c.PacketSize < 0 {
			return fmt.Errorf("echo client %s: packet count and size must not be negative",
				c.Name)
		}

		if _, err := netip.ParseAddr(c.Remote); err != nil && !nodes[c.Remote] {
			return fmt.Errorf("echo client %s has unknown remote %s",
				c.Name, c.Remote)
		}
	}

	return nil
}

// validateActivePeriod accepts a missing stop time, which keeps the
// application running until the end of the simulation.
func validateActivePeriod(start, stop Duration) error {
	if stop > 0 && stop < start {
		return fmt.Errorf("stop time %s is earlier than start time %s",
			stop, start)
	}

	return nil
}

func (d *Description) validateMobility(nodes map[string]bool) error {
	if d.Mobility.Grid != nil {
		if d.Mobility.Grid.GridWidth <= 0 {
			return fmt.Errorf("grid width must be positive")
		}

		if _, err := ParseGridLayout(d.Mobility.Grid.Layout); err != nil {
			return err
		}
	}

	for _, n := range d.Mobility.Order {
		if !nodes[n] {
			return fmt.Errorf("mobility order refers to unknown node %s", n)
		}
	}

	for n := range d.Mobility.Positions {
		if !nodes[n] {
			return fmt.Errorf("position given for unknown node %s", n)
		}
	}

	return nil
}
