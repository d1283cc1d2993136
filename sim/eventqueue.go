package sim

import (
	"container/heap"
)

// EventQueue are a queue of event ordered by the time of events. Events with
// the same time are ordered by their insertion sequence.
type EventQueue interface {
	Push(evt *Event)
	Pop() *Event
	Len() int
	Peek() *Event
}

// EventQueueImpl is a heap-based event queue. It is owned by a single engine
// and is not safe for concurrent use.
type EventQueueImpl struct {
	events eventHeap
}

// NewEventQueue creates and returns a newly created EventQueue
func NewEventQueue() *EventQueueImpl {
	q := new(EventQueueImpl)
	q.events = make([]*Event, 0)
	heap.Init(&q.events)
	return q
}

// Push adds an event to the event queue
func (q *EventQueueImpl) Push(evt *Event) {
	heap.Push(&q.events, evt)
}

// Pop removes and returns the earliest event that is not cancelled. Cancelled
// events found at the front of the queue are discarded. Pop returns nil if no
// live event is left.
func (q *EventQueueImpl) Pop() *Event {
	q.discardCancelled()

	if q.events.Len() == 0 {
		return nil
	}

	return heap.Pop(&q.events).(*Event)
}

// Len returns the number of events in the queue, including cancelled events
// that have not been discarded yet.
func (q *EventQueueImpl) Len() int {
	return q.events.Len()
}

// Peek returns the earliest event that is not cancelled without removing it
// from the queue.
func (q *EventQueueImpl) Peek() *Event {
	q.discardCancelled()

	if q.events.Len() == 0 {
		return nil
	}

	return q.events[0]
}

func (q *EventQueueImpl) discardCancelled() {
	for q.events.Len() > 0 && q.events[0].cancelled {
		heap.Pop(&q.events)
	}
}

type eventHeap []*Event

// Len returns the length of the event queue
func (h eventHeap) Len() int {
	return len(h)
}

// Less determines the order between two events. Less returns true if the i-th
// event happens before the j-th event.
func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}

	return h[i].seq < h[j].seq
}

// Swap changes the position of two events in the event queue
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push adds an event into the event queue
func (h *eventHeap) Push(x interface{}) {
	event := x.(*Event)
	*h = append(*h, event)
}

// Pop removes and returns the next event to happen
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	event := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return event
}
