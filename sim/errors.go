package sim

import "fmt"

// InvalidScheduleError is returned when an event is scheduled at a time
// earlier than the current time of the engine.
type InvalidScheduleError struct {
	EventName string
	Time      VTimeInSec
	Now       VTimeInSec
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf(
		"cannot schedule event %q at %.10f, now is %.10f",
		e.EventName, e.Time, e.Now,
	)
}

// CallbackError reports an error returned by the callback of an event. It
// carries the time and the identity of the event so that the failing point
// of a run can be located.
type CallbackError struct {
	Time      VTimeInSec
	EventID   string
	EventName string
	Err       error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf(
		"event %s (%s) failed at %.10f: %v",
		e.EventID, e.EventName, e.Time, e.Err,
	)
}

// Unwrap returns the error returned by the callback.
func (e *CallbackError) Unwrap() error {
	return e.Err
}
