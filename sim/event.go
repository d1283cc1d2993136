package sim

// VTimeInSec defines the time in the simulated space in the unit of second
type VTimeInSec float64

// A Callback is the work that an event performs when it is triggered. A
// non-nil error terminates the simulation run.
type Callback func() error

// An Event is something going to happen in the future.
//
// Events are created by the engine when a callback is scheduled. The pointer
// returned by the engine serves as the handle of the event, which can be used
// to cancel the event before it is triggered.
type Event struct {
	ID   string
	Name string

	time     VTimeInSec
	seq      uint64
	callback Callback

	cancelled bool
	executed  bool
}

// Time returns the time that the event is going to happen.
func (e *Event) Time() VTimeInSec {
	return e.time
}

// Seq returns the insertion sequence number of the event. Events scheduled
// at the same time are triggered in the order of their sequence numbers.
func (e *Event) Seq() uint64 {
	return e.seq
}

// Cancel marks the event inert. A cancelled event stays in the queue but its
// callback is never invoked. Cancelling an event that has already been
// triggered, or cancelling it twice, has no effect.
func (e *Event) Cancel() {
	if e.executed {
		return
	}

	e.cancelled = true
}

// IsCancelled tells if the event has been cancelled.
func (e *Event) IsCancelled() bool {
	return e.cancelled
}

// IsExecuted tells if the callback of the event has been invoked.
func (e *Event) IsExecuted() bool {
	return e.executed
}

func (e *Event) fire() error {
	e.executed = true

	if e.callback == nil {
		return nil
	}

	return e.callback()
}
