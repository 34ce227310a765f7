// Package protocol defines the JSON wire format spoken over the live-sync
// websocket.
//
// Outbound frames:
//   - {"type":"authenticate","value":{<cookie>:<value>,...}} once per connection
//   - {"type":"REGISTER","organisationId",...} once per live query
//
// Inbound frames are push messages: {"schema","node","cursor","before"}.
package protocol
