package observer

import (
	"testing"
)

func TestEventTypeFilterNilAllowsAll(t *testing.T) {
	var filter EventFilter
	event := Event{Type: EventNodeReady}
	if filter != nil && !filter.ShouldNotify(event) {
		t.Fatalf("nil filter should allow all events")
	}
}

func TestEventTypeFilterAllowsListed(t *testing.T) {
	filter := NewEventTypeFilter(EventTxSent, EventTxConfirmed)
	if !filter.ShouldNotify(Event{Type: EventTxSent}) {
		t.Fatalf("expected tx_sent to be allowed")
	}
	if filter.ShouldNotify(Event{Type: EventNodeReady}) {
		t.Fatalf("expected node_ready to be blocked")
	}
}

func TestNewEventTypeFilterNoTypesIsNil(t *testing.T) {
	if NewEventTypeFilter() != nil {
		t.Fatalf("expected nil filter when no types given")
	}
}

func TestEventTypeFilterNilReceiverSafe(t *testing.T) {
	var f *EventTypeFilter
	if !f.ShouldNotify(Event{Type: EventNodeReady}) {
		t.Fatalf("nil *EventTypeFilter should allow all events")
	}
}
