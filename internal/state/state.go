// Package state holds the global application state the live-sync
// components share: the ready connection handle and the routing context.
//
// State changes only through Dispatch, which runs the pure Reduce function
// under a lock.
package state

import (
	"sync"

	"github.com/rickgao/livesync/internal/connection"
)

// Status is the externally visible connection status.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusReady        Status = "ready"
	StatusDisconnected Status = "disconnected"
)

// Route is the routing context registrations are scoped to.
type Route struct {
	OrganisationID string
}

// State is an immutable snapshot of the application state.
type State struct {
	Websocket *connection.Handle
	Status    Status
	Route     Route
	LastError error
}

// Action is a state transition request.
type Action interface {
	isAction()
}

// WebsocketReady publishes the handle of a ready connection.
type WebsocketReady struct {
	Handle *connection.Handle
}

// WebsocketClosed clears the handle after a transport failure or shutdown.
type WebsocketClosed struct {
	Err error
}

// RouteChanged replaces the routing context.
type RouteChanged struct {
	Route Route
}

func (WebsocketReady) isAction()  {}
func (WebsocketClosed) isAction() {}
func (RouteChanged) isAction()    {}

// Reduce returns the state that results from applying a to s.
// Unknown actions return s unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case WebsocketReady:
		s.Websocket = a.Handle
		s.Status = StatusReady
		s.LastError = nil
	case WebsocketClosed:
		s.Websocket = nil
		s.Status = StatusDisconnected
		s.LastError = a.Err
	case RouteChanged:
		s.Route = a.Route
	}
	return s
}

// Store is the concurrency-safe holder of State.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore creates a store in the idle state.
func NewStore(route Route) *Store {
	return &Store{state: State{Status: StatusIdle, Route: route}}
}

// Dispatch applies a and returns the new state.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	return s.state
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
