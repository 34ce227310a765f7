// Package subscription implements the Subscription Registry component.
//
// The Subscription Registry:
//   - Accepts register requests from any goroutine without blocking
//   - Processes them one at a time, in the order they were made
//   - Sends a REGISTER frame over the ready connection with fresh credentials
//   - Drops (or, with the buffer policy, holds) requests made before ready
package subscription
