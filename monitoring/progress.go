package monitoring

import (
	"encoding/json"
	"sync"
	"time"
)

// A ProgressBar tracks how far a run has gone. Finished counts the completed
// units out of Total. InProgress counts work that has started but is not
// done, such as the events waiting in the queue.
type ProgressBar struct {
	mu sync.Mutex

	id         string
	name       string
	startTime  time.Time
	total      uint64
	finished   uint64
	inProgress uint64
}

// ID returns the ID of the bar.
func (b *ProgressBar) ID() string {
	return b.id
}

// Total returns the number of units to finish.
func (b *ProgressBar) Total() uint64 {
	return b.total
}

// AdvanceTo moves the finished count to done. The finished count never
// moves backward and never exceeds the total.
func (b *ProgressBar) AdvanceTo(done uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if done > b.total {
		done = b.total
	}

	if done > b.finished {
		b.finished = done
	}
}

// SetInProgress replaces the in-progress count.
func (b *ProgressBar) SetInProgress(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inProgress = n
}

// Finished returns the finished count.
func (b *ProgressBar) Finished() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.finished
}

// MarshalJSON writes a consistent snapshot of the bar.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return json.Marshal(struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		StartTime  time.Time `json:"start_time"`
		Total      uint64    `json:"total"`
		Finished   uint64    `json:"finished"`
		InProgress uint64    `json:"in_progress"`
	}{b.id, b.name, b.startTime, b.total, b.finished, b.inProgress})
}
