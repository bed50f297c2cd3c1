// Package storage handles the on-disk layout for task uploads and exports:
// streamed upload persistence with SHA-256 hashing, export verification,
// directory sizing, zip packaging for downloads, and per-task cleanup.
package storage
