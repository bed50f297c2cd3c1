// Package worker implements the single-consumer task loop: it drains pending
// tasks in creation order, acquires exclusive engine access, runs the
// load-export-verify-reset pipeline, and records exactly one terminal state
// per task. On startup it reconciles tasks left mid-flight by a prior run
// before admitting new work.
package worker
