package tracing

import (
	"github.com/sarchlab/netsim/sim"
)

// CollectTrace lets the tracer collect traces from the domains.
func CollectTrace(tracer sim.Hook, domains ...sim.Hookable) {
	for _, d := range domains {
		d.AcceptHook(tracer)
	}
}
