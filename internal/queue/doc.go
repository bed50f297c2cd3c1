// Package queue persists extraction tasks in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, embedded SQL migrations, FIFO
// dequeue by creation time, stats queries, and the startup reconciliation
// that fails tasks left mid-flight by an abrupt shutdown. The database is the
// single source of truth for queue ordering; no in-memory queue exists, so
// pending work survives a full process restart.
package queue
