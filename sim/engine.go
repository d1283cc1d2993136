package sim

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// EventScheduler can be used to schedule future events.
type EventScheduler interface {
	TimeTeller

	// Schedule registers a callback to be invoked at the given time. It
	// returns the handle of the event, which can be used to cancel it.
	Schedule(t VTimeInSec, name string, cb Callback) (*Event, error)

	// ScheduleAfter registers a callback to be invoked after the given
	// duration, counting from the current time.
	ScheduleAfter(d VTimeInSec, name string, cb Callback) (*Event, error)
}

// A SimulationEndHandler is a handler that is called after the simulation ends.
type SimulationEndHandler interface {
	Handle(now VTimeInSec)
}

// Termination describes why a run returned.
type Termination int

// The possible outcomes of a run.
const (
	NotStarted Termination = iota
	Running
	// Completed means that the event queue was drained.
	Completed
	// Truncated means that the stop time was reached with events possibly
	// still pending.
	Truncated
	// Stopped means that Stop was requested by a callback.
	Stopped
	// Failed means that a callback returned an error or an event was
	// scheduled in the past.
	Failed
)

func (t Termination) String() string {
	switch t {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Truncated:
		return "truncated"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	Hookable
	EventScheduler

	// Cancel marks an event inert so that it never triggers.
	Cancel(evt *Event)

	// Run will process all the events until the simulation finishes
	Run() error

	// RunUntil processes events whose time is not later than the stop time.
	RunUntil(stopTime VTimeInSec) error

	// Stop ends the current run after the running event completes.
	Stop()

	// ScheduleStop schedules a stop request at the given time.
	ScheduleStop(t VTimeInSec) (*Event, error)

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation
	Continue()

	// Inspect calls fn while no event is being processed.
	Inspect(fn func())

	// Pending returns the number of events that are still in the queue.
	Pending() int

	// Termination tells how the last run ended.
	Termination() Termination

	// IDGenerator returns the ID generator owned by the engine.
	IDGenerator() IDGenerator

	// RegisterSimulationEndHandler registers a handler that perform some
	// actions after the simulation is finished.
	RegisterSimulationEndHandler(handler SimulationEndHandler)

	// Finished invokes all the registered SimulationEndHandler
	Finished()
}
