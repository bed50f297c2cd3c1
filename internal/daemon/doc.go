// Package daemon coordinates the long-running assetrip process and system
// integration points.
//
// It wires configuration, queue storage, the engine supervisor, the task
// worker, and the retention sweeper into a single lifecycle with flock-based
// locking to prevent multiple instances, and serves the HTTP API the CLI
// talks to. Startup tolerates a broken engine binary; the health monitor owns
// recovery from that point on. Shutdown stops intake first and the engine
// process last so an in-flight export can finish under its own timeouts.
//
// Keep orchestration logic here: pipeline steps live in their respective
// packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
