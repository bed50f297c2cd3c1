// Package client provides the HTTP client the assetrip CLI uses to talk to a
// running assetripd daemon.
package client
