// Package broadcast implements the live channel: connection registry, fan-out and sessions.
//
// The Hub owns the set of live clients in a single goroutine fed by a command channel (no mutexes).
// Every client gets a writer goroutine that is the only code path allowed to write to its socket,
// so broadcast fan-out and direct replies are serialized per connection. Broadcast waits for every
// delivery outcome and removes the clients that failed as one batch after the pass.
// A Session drives one connection from handshake to close.
package broadcast
