// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm holds the job lifecycle state machine.
package fsm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned for edges the machine does not know.
var ErrInvalidTransition = errors.New("invalid transition")

// Transition is one edge: Event moves the machine from From to To.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

// Machine is a strict FSM: events without an edge from the current state
// are rejected and leave the state unchanged.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	edges map[edge[S, E]]S
}

// New indexes transitions. Two edges for the same state and event are an error.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	edges := make(map[edge[S, E]]S, len(transitions))
	for _, t := range transitions {
		k := edge[S, E]{from: t.From, event: t.Event}
		if _, dup := edges[k]; dup {
			return nil, fmt.Errorf("duplicate transition: %s on %s", t.From, t.Event)
		}
		edges[k] = t.To
	}
	return &Machine[S, E]{state: initial, edges: edges}, nil
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies event and returns the new state.
func (m *Machine[S, E]) Fire(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	to, ok := m.edges[edge[S, E]{from: m.state, event: event}]
	if !ok {
		return m.state, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, m.state, event)
	}
	m.state = to
	return to, nil
}
