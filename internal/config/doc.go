// Package config loads, normalizes, and validates assetrip configuration.
//
// Configuration lives in a TOML file (default ~/.config/assetrip/config.toml,
// with ./assetrip.toml as a project-local fallback). Missing values are filled
// from Default(); paths are tilde-expanded and made absolute before
// validation.
package config
