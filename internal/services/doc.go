// Package services defines the error taxonomy shared by the engine supervisor
// and the task worker. Failures are wrapped with a stable Code so task
// records and health reporting can distinguish outcomes mechanically.
package services
