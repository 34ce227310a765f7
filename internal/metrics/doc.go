// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Websocket lifecycle state and inbound frame rate
//   - Pushes merged per schema, and pushes dropped as malformed or unknown
//   - Registration outcomes (sent, dropped before ready, buffered)
//   - Entity mirror batch throughput and failures
package metrics
