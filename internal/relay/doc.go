// Package relay implements the session relay core: a single actor
// goroutine owning the speaker slot, the viewer set, and the lifecycle
// of the upstream translation session, fanning normalized events out to
// every connected client.
//
// All state transitions happen on the actor goroutine; callers interact
// through the command channel only, so no shared state is mutated
// concurrently.
package relay
