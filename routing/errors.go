package routing

import (
	"fmt"
	"net/netip"
)

// NoRouteError is returned when a node does not know how to reach a
// destination.
type NoRouteError struct {
	Node string
	Dst  netip.Addr
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("node %s has no route to %s", e.Node, e.Dst)
}
