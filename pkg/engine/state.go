// Package engine implements the Scheduler / Engine (component E): a
// cooperative scheduler loop dispatching ready plan.Nodes to the
// executor chain under global and per-chain concurrency limits, with
// retry/until polling, pause/resume, cancellation, and checkpoint
// emission after each scheduling pass and when the run pauses, fails or
// completes; a node transition inside a pass does not save a checkpoint
// of its own.
package engine

import (
	"sync"

	"github.com/owliabot/ais-sub001/pkg/eventlog"
)

// Status is a node's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReady    Status = "ready"
	StatusRunning  Status = "running"
	StatusRetrying Status = "retrying"
	StatusPaused   Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// runState tracks per-node runtime status, mirroring the teacher's
// ExecutionState map-of-maps pattern (guarded by one RWMutex rather
// than per-field locks; both the scheduler loop and the per-node
// goroutines it starts write through it).
type runState struct {
	mu         sync.RWMutex
	status     map[string]Status
	pollState  map[string]eventlog.PollState
	pauseState map[string]eventlog.PauseState
	cancelled  bool
	cancelReason string
}

func newRunState() *runState {
	return &runState{
		status:     make(map[string]Status),
		pollState:  make(map[string]eventlog.PollState),
		pauseState: make(map[string]eventlog.PauseState),
	}
}

func (s *runState) setStatus(id string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = st
}

func (s *runState) getStatus(id string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[id]
	if !ok {
		return StatusPending
	}
	return st
}

func (s *runState) completedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, st := range s.status {
		if st == StatusCompleted || st == StatusSkipped {
			out = append(out, id)
		}
	}
	return out
}

func (s *runState) setPoll(id string, p eventlog.PollState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollState[id] = p
}

func (s *runState) getPoll(id string) eventlog.PollState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pollState[id]
}

func (s *runState) pollStates() map[string]eventlog.PollState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]eventlog.PollState, len(s.pollState))
	for k, v := range s.pollState {
		out[k] = v
	}
	return out
}

func (s *runState) setPause(id string, p eventlog.PauseState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseState[id] = p
}

func (s *runState) clearPause(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pauseState, id)
}

func (s *runState) pauseStates() map[string]eventlog.PauseState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]eventlog.PauseState, len(s.pauseState))
	for k, v := range s.pauseState {
		out[k] = v
	}
	return out
}

func (s *runState) setCancelled(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.cancelReason = reason
}

func (s *runState) isCancelled() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled, s.cancelReason
}
