// Package cleanup implements the age-based retention sweep over task upload
// and export artifacts.
package cleanup
