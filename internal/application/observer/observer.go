package observer

import (
	"context"
	"time"
)

// Observer receives run events. Implementations must not block the
// scheduler; slow sinks should buffer internally.
type Observer interface {
	OnEvent(ctx context.Context, event Event) error
	Name() string
	Filter() EventFilter
}

// EventType is the closed set of event types the scheduler emits.
type EventType string

const (
	EventPlanReady       EventType = "plan_ready"
	EventNodeReady       EventType = "node_ready"
	EventNodeBlocked     EventType = "node_blocked"
	EventNodePaused      EventType = "node_paused"
	EventSolverApplied   EventType = "solver_applied"
	EventQueryResult     EventType = "query_result"
	EventTxPrepared      EventType = "tx_prepared"
	EventNeedUserConfirm EventType = "need_user_confirm"
	EventTxSent          EventType = "tx_sent"
	EventTxConfirmed     EventType = "tx_confirmed"
	EventNodeWaiting     EventType = "node_waiting"
	EventEnginePaused    EventType = "engine_paused"
	EventSkipped         EventType = "skipped"
	EventError           EventType = "error"
	EventCheckpointSaved EventType = "checkpoint_saved"
	EventCommandAccepted EventType = "command_accepted"
	EventCommandRejected EventType = "command_rejected"
	EventPatchApplied    EventType = "patch_applied"
	EventPatchRejected   EventType = "patch_rejected"
)

// Event is the envelope the scheduler hands to observers; Seq and
// RunID are filled in by the caller before Notify, Data carries the
// event-specific payload (e.g. {attempts, next_attempt_at_ms} for
// node_waiting).
type Event struct {
	RunID     string
	Seq       int64
	Timestamp time.Time
	Type      EventType
	NodeID    string
	Data      map[string]interface{}
}

// EventFilter decides whether an event reaches one observer.
type EventFilter interface {
	ShouldNotify(event Event) bool
}

// EventTypeFilter restricts notification to a fixed set of types.
type EventTypeFilter struct {
	allowed map[EventType]bool
}

// NewEventTypeFilter returns a filter matching only the given types, or
// nil (meaning "all events") if none are given.
func NewEventTypeFilter(types ...EventType) EventFilter {
	if len(types) == 0 {
		return nil
	}
	f := &EventTypeFilter{allowed: make(map[EventType]bool, len(types))}
	for _, t := range types {
		f.allowed[t] = true
	}
	return f
}

func (f *EventTypeFilter) ShouldNotify(event Event) bool {
	if f == nil || len(f.allowed) == 0 {
		return true
	}
	return f.allowed[event.Type]
}
