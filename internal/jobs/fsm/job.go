// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

// State is a job lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// ParseState resolves a state name.
func ParseState(s string) (State, bool) {
	for _, st := range States() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// States lists every state in lifecycle order.
func States() []State {
	return []State{StateQueued, StateRunning, StateSucceeded, StateFailed, StateTimedOut, StateCancelled}
}

// Event drives a job between states.
type Event string

const (
	EventStart   Event = "start"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
	EventTimeout Event = "timeout"
	EventCancel  Event = "cancel"
)

// Table is the job lifecycle: queued -> running -> terminal, and
// queued -> cancelled.
var Table = []Transition[State, Event]{
	{From: StateQueued, Event: EventStart, To: StateRunning},
	{From: StateQueued, Event: EventCancel, To: StateCancelled},
	{From: StateRunning, Event: EventSucceed, To: StateSucceeded},
	{From: StateRunning, Event: EventFail, To: StateFailed},
	{From: StateRunning, Event: EventTimeout, To: StateTimedOut},
	{From: StateRunning, Event: EventCancel, To: StateCancelled},
}

var eventTo = map[State]Event{
	StateRunning:   EventStart,
	StateSucceeded: EventSucceed,
	StateFailed:    EventFail,
	StateTimedOut:  EventTimeout,
	StateCancelled: EventCancel,
}

// EventFor returns the event that leads into to.
func EventFor(to State) (Event, bool) {
	e, ok := eventTo[to]
	return e, ok
}

// Allowed reports whether the table has an edge from -> to.
func Allowed(from, to State) bool {
	e, ok := EventFor(to)
	if !ok {
		return false
	}
	for _, t := range Table {
		if t.From == from && t.Event == e {
			return t.To == to
		}
	}
	return false
}

// NewJob returns a machine over Table starting at initial.
func NewJob(initial State) *Machine[State, Event] {
	m, err := New(initial, Table)
	if err != nil {
		// Table is static; a duplicate edge is a programming error.
		panic(err)
	}
	return m
}
