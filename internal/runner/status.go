package runner

import (
	"sync"
	"time"

	"github.com/signalnine/fiveworlds/internal/world"
)

// Status is the state a world attempt ended in.
type Status string

const (
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
	StatusSkipped    Status = "skipped"
)

// WorldExecutionStatus is advisory bookkeeping for one world attempt.
type WorldExecutionStatus struct {
	World     world.ID  `json:"world"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// StatusTracker exposes in-flight world attempts for observability. The
// executor writes to it but never reads it to make decisions.
type StatusTracker struct {
	slots [world.Count]statusSlot
}

type statusSlot struct {
	mu     sync.Mutex
	status *WorldExecutionStatus
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

func (t *StatusTracker) Start(id world.ID, at time.Time) {
	s := &t.slots[id.Index()]
	s.mu.Lock()
	s.status = &WorldExecutionStatus{World: id, Status: StatusRunning, StartedAt: at}
	s.mu.Unlock()
}

func (t *StatusTracker) Finish(id world.ID, status Status, at time.Time) {
	s := &t.slots[id.Index()]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		s.status = &WorldExecutionStatus{World: id, StartedAt: at}
	}
	s.status.Status = status
	s.status.EndedAt = at
}

// Snapshot returns the attempts seen so far in canonical world order.
func (t *StatusTracker) Snapshot() []WorldExecutionStatus {
	var out []WorldExecutionStatus
	for i := range t.slots {
		s := &t.slots[i]
		s.mu.Lock()
		if s.status != nil {
			out = append(out, *s.status)
		}
		s.mu.Unlock()
	}
	return out
}

// Reset forgets every attempt.
func (t *StatusTracker) Reset() {
	for i := range t.slots {
		s := &t.slots[i]
		s.mu.Lock()
		s.status = nil
		s.mu.Unlock()
	}
}
