// Package normalizer implements the Message Normalizer component.
//
// The Message Normalizer consumes inbound message events on a single
// goroutine, in arrival order. Each push is parsed, resolved against the
// closed schema registry, normalized into an entity graph, merged into the
// entity sinks and finally handed to the pagination injector. Malformed
// pushes and unknown schemas are logged, counted and skipped.
package normalizer
