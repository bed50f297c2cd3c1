// Package logging builds slog loggers for the daemon and CLI.
//
// Loggers write to stdout/stderr plus the daemon log file when a log
// directory is configured. Console format is a pipe-delimited line for
// operators; JSON format is available for ingestion. Attribute helpers keep
// field names consistent across components.
package logging
