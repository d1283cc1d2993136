package routing

import (
	"net/netip"

	"github.com/sarchlab/netsim/network"
	"golang.org/x/exp/slices"
)

// A Route tells which device a packet should leave from and which device on
// the other side of the channel should receive it.
type Route struct {
	Device  *network.Device
	NextHop netip.Addr
}

// Table is a routing table that can find the next hop according to the final
// destination.
type Table interface {
	FindRoute(dst netip.Addr) (Route, bool)
	DefineRoute(dst netip.Prefix, route Route)
	DefineDefaultRoute(route Route)
	Entries() []Entry
}

// An Entry is a route to a range of destinations.
type Entry struct {
	Prefix netip.Prefix
	Route  Route
}

// NewTable creates a new Table.
func NewTable() Table {
	return &table{}
}

// table keeps the entries ordered from the longest prefix to the shortest so
// that the first match is the most specific one.
type table struct {
	entries      []Entry
	defaultRoute *Route
}

func (t *table) FindRoute(dst netip.Addr) (Route, bool) {
	for _, e := range t.entries {
		if e.Prefix.Contains(dst) {
			return e.Route, true
		}
	}

	if t.defaultRoute != nil {
		return *t.defaultRoute, true
	}

	return Route{}, false
}

func (t *table) DefineRoute(dst netip.Prefix, route Route) {
	dst = dst.Masked()

	for i, e := range t.entries {
		if e.Prefix == dst {
			t.entries[i].Route = route
			return
		}
	}

	t.entries = append(t.entries, Entry{Prefix: dst, Route: route})
	slices.SortStableFunc(t.entries, func(a, b Entry) int {
		return b.Prefix.Bits() - a.Prefix.Bits()
	})
}

func (t *table) DefineDefaultRoute(route Route) {
	t.defaultRoute = &route
}

func (t *table) Entries() []Entry {
	return slices.Clone(t.entries)
}
