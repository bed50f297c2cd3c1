// Package api defines the JSON types exchanged between the daemon's HTTP
// surface and its clients.
package api
