package sim

import (
	"math"
	"sync"
)

// A SerialEngine is an Engine that always run events one after another.
//
// The engine owns the virtual clock and the event queue. Callbacks run to
// completion on the goroutine that calls Run and may schedule further events,
// which become visible to the same run. The clock only moves when an event is
// dequeued, so it never goes backward.
type SerialEngine struct {
	HookableBase

	timeLock sync.RWMutex
	time     VTimeInSec

	queue       EventQueue
	nextSeq     uint64
	idGenerator IDGenerator

	stopRequested bool
	scheduleErr   error
	termination   Termination

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	// stateLock is held while an event is dequeued and triggered.
	stateLock sync.Mutex

	singleRunLock sync.Mutex

	simulationEndHandlers []SimulationEndHandler
}

// NewSerialEngine creates a SerialEngine
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)

	e.queue = NewEventQueue()
	e.idGenerator = NewSequentialIDGenerator()

	return e
}

// WithIDGenerator replaces the ID generator of the engine. It must be called
// before any event is scheduled.
func (e *SerialEngine) WithIDGenerator(g IDGenerator) *SerialEngine {
	if e.nextSeq > 0 {
		panic("cannot change id generator after scheduling events")
	}

	e.idGenerator = g

	return e
}

// IDGenerator returns the ID generator owned by the engine.
func (e *SerialEngine) IDGenerator() IDGenerator {
	return e.idGenerator
}

// Schedule register an event to be happen in the future
func (e *SerialEngine) Schedule(
	t VTimeInSec,
	name string,
	cb Callback,
) (*Event, error) {
	now := e.readNow()
	if t < now || math.IsNaN(float64(t)) {
		err := &InvalidScheduleError{EventName: name, Time: t, Now: now}

		if e.termination == Running && e.scheduleErr == nil {
			e.scheduleErr = err
		}

		return nil, err
	}

	evt := &Event{
		ID:       e.idGenerator.Generate(),
		Name:     name,
		time:     t,
		seq:      e.nextSeq,
		callback: cb,
	}
	e.nextSeq++

	e.queue.Push(evt)

	return evt, nil
}

// ScheduleAfter registers an event that happens d seconds after the current
// time.
func (e *SerialEngine) ScheduleAfter(
	d VTimeInSec,
	name string,
	cb Callback,
) (*Event, error) {
	return e.Schedule(e.readNow()+d, name, cb)
}

// Cancel marks an event inert. It is safe to call Cancel with nil or with an
// event that has already been triggered.
func (e *SerialEngine) Cancel(evt *Event) {
	if evt == nil {
		return
	}

	evt.Cancel()
}

// ScheduleStop schedules a stop request at the given time.
func (e *SerialEngine) ScheduleStop(t VTimeInSec) (*Event, error) {
	return e.Schedule(t, "Stop", func() error {
		e.Stop()
		return nil
	})
}

// Stop requests the running loop to return after the current event.
func (e *SerialEngine) Stop() {
	e.stopRequested = true
}

func (e *SerialEngine) readNow() VTimeInSec {
	e.timeLock.RLock()
	t := e.time
	e.timeLock.RUnlock()
	return t
}

func (e *SerialEngine) writeNow(t VTimeInSec) {
	e.timeLock.Lock()
	e.time = t
	e.timeLock.Unlock()
}

// Run processes all the events scheduled in the SerialEngine
func (e *SerialEngine) Run() error {
	return e.run(VTimeInSec(math.Inf(1)))
}

// RunUntil processes the events scheduled no later than the stop time. When
// the next event is beyond the stop time, the clock is moved to the stop time
// and the run returns without error.
func (e *SerialEngine) RunUntil(stopTime VTimeInSec) error {
	return e.run(stopTime)
}

func (e *SerialEngine) run(stopTime VTimeInSec) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	e.stopRequested = false
	e.scheduleErr = nil
	e.termination = Running

	for {
		if e.stopRequested {
			e.termination = Stopped
			return nil
		}

		e.pauseLock.Lock()
		e.stateLock.Lock()

		evt := e.queue.Peek()
		if evt == nil {
			e.stateLock.Unlock()
			e.pauseLock.Unlock()
			e.termination = Completed
			return nil
		}

		if evt.time > stopTime {
			if stopTime > e.readNow() {
				e.writeNow(stopTime)
			}

			e.stateLock.Unlock()
			e.pauseLock.Unlock()
			e.termination = Truncated
			return nil
		}

		e.queue.Pop()
		e.writeNow(evt.time)

		err := e.trigger(evt)

		e.stateLock.Unlock()
		e.pauseLock.Unlock()

		if err != nil {
			e.termination = Failed
			return &CallbackError{
				Time:      evt.time,
				EventID:   evt.ID,
				EventName: evt.Name,
				Err:       err,
			}
		}

		if e.scheduleErr != nil {
			e.termination = Failed
			return &CallbackError{
				Time:      evt.time,
				EventID:   evt.ID,
				EventName: evt.Name,
				Err:       e.scheduleErr,
			}
		}
	}
}

func (e *SerialEngine) trigger(evt *Event) error {
	hookCtx := HookCtx{
		Domain: e,
		Now:    evt.time,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	e.InvokeHook(hookCtx)

	err := evt.fire()

	hookCtx.Pos = HookPosAfterEvent
	hookCtx.Detail = err
	e.InvokeHook(hookCtx)

	return err
}

// Pending returns the number of events left in the queue. Cancelled events
// that have not reached the front of the queue are counted.
func (e *SerialEngine) Pending() int {
	return e.queue.Len()
}

// Termination tells how the last run ended.
func (e *SerialEngine) Termination() Termination {
	return e.termination
}

// Pause prevents the SerialEngine to trigger more events.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue allows the SerialEngine to trigger more events.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// Inspect calls fn while no event is being processed, so that fn can read
// the state of the simulation from another goroutine. Inspect works whether
// or not the engine is paused. fn must not schedule events or call Inspect.
func (e *SerialEngine) Inspect(fn func()) {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	fn()
}

// CurrentTime returns the current time at which the engine is at.
// Specifically, the run time of the current event.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	return e.readNow()
}

// RegisterSimulationEndHandler invokes all the registered simulation end
// handler.
func (e *SerialEngine) RegisterSimulationEndHandler(
	handler SimulationEndHandler,
) {
	e.simulationEndHandlers = append(e.simulationEndHandlers, handler)
}

// Finished should be called after the simulation ends. This function
// calls all the registered SimulationEndHandler.
func (e *SerialEngine) Finished() {
	now := e.readNow()
	for _, h := range e.simulationEndHandlers {
		h.Handle(now)
	}
}
