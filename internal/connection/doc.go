// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single websocket of a live-sync session
//   - Sends one authenticate frame with the current session cookies on open
//   - Publishes a ready event carrying the connection Handle
//   - Forwards every inbound frame, in arrival order, as a message event
//   - Publishes a closed event when the transport fails (no reconnection)
package connection
