// Package engine supervises the single long-lived external extraction
// process: spawning and terminating the binary, speaking its localhost HTTP
// control surface, tracking its lifecycle phase in a shared state record, and
// recovering it through a bounded-backoff restart ladder when liveness is
// lost.
//
// The engine is expensive to start, so it is started once and reused across
// tasks via Reset; restarts are reserved for failure recovery. The Monitor
// and the task worker coordinate through State, whose transitions are all
// atomic read-modify-writes.
package engine
