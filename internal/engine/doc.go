// Package engine wires the live-sync components into one session.
//
// Inbound, events from the Connection Manager are dispatched on a single
// goroutine: the ready event updates the state store and wakes the
// Subscription Registry, message events feed the Message Normalizer, and a
// closed event marks the session disconnected. Outbound, Register queues a
// live query with the Subscription Registry.
package engine
