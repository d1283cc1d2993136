package sim

import (
	"log"
)

// LogHookBase holds the logger of the hooks that print what happens in a
// simulation.
type LogHookBase struct {
	*log.Logger
}

// Logf prints one line that starts with the virtual time.
func (h LogHookBase) Logf(now VTimeInSec, format string, args ...interface{}) {
	h.Logger.Printf("%.10f, "+format, append([]interface{}{now}, args...)...)
}

// EventLogger is a hook that prints every event before it is handled.
type EventLogger struct {
	LogHookBase
}

// NewEventLogger returns a new EventLogger that writes into the logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	return &EventLogger{LogHookBase{Logger: logger}}
}

// Func prints the time, the ID, and the name of the event.
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(*Event)
	if !ok {
		return
	}

	h.Logf(evt.Time(), "%s, %s", evt.ID, evt.Name)
}
