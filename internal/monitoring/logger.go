// Package monitoring carries the diagnostic plumbing used by the analysis
// packages: a swappable printf-style logger and a structured trace sink.
package monitoring

import "log"

// Logf is the package-level diagnostic logger used by every analysis stage.
// It defaults to log.Printf; SetLogger swaps or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
