//go:build tools
// +build tools

package httpio

// Merges the coverage profiles of the unit and interop test runs.
import _ "github.com/wadey/gocovmerge"
