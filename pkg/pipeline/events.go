package pipeline

import "github.com/baiwei0427/Lurker/pkg/flow"

// EventKind names a flow-table event.
type EventKind int

const (
	// EventInserted reports a SYN that started tracking a connection.
	EventInserted EventKind = iota
	// EventRemoved reports a FIN or RST that ended tracking.
	EventRemoved
	// EventLookupMiss reports a segment for an untracked connection.
	EventLookupMiss
	// EventDuplicateInsert reports a SYN for an already tracked connection.
	EventDuplicateInsert
	// EventInsertFailed reports a SYN that could not be tracked.
	EventInsertFailed
	// EventRewritten reports a lowered window.
	EventRewritten
)

var eventNames = [...]string{
	EventInserted:        "inserted",
	EventRemoved:         "removed",
	EventLookupMiss:      "lookup_miss",
	EventDuplicateInsert: "duplicate_insert",
	EventInsertFailed:    "insert_failed",
	EventRewritten:       "rewritten",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}

// EventKinds lists every kind, in declaration order.
func EventKinds() []EventKind {
	return []EventKind{EventInserted, EventRemoved, EventLookupMiss,
		EventDuplicateInsert, EventInsertFailed, EventRewritten}
}

// Event is emitted by the pipeline for the surrounding system to record.
type Event struct {
	Kind EventKind
	Key  flow.Key

	// OldWindow and NewWindow are set for EventRewritten.
	OldWindow uint16
	NewWindow uint16

	// Err is set for EventInsertFailed.
	Err error
}

// Observer receives pipeline events. Observe is called synchronously on
// the packet path and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
