// Package transfer owns the chunked transfer state machines.
//
// Ownership boundary:
// - sender session: advertise, fragment, stream under flow control
// - receiver session: metadata read, start, reassemble, complete
// - park/reconnect policy and application-facing event stream
//
// Each machine serializes all transport callbacks and application calls onto
// a single event-loop goroutine; session state is never mutated from two
// goroutines.
package transfer
