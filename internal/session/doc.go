// Package session holds per-user conversation state.
//
// A session moves from Idle to AwaitingFormatChoice once its URL resolves and
// to JobInFlight once the user picks a format. Every mutation happens under the
// session's own mutex, so two events of the same user never interleave.
// Resolution runs on a bounded pool off the caller's goroutine and reports back
// through a Listener.
package session
