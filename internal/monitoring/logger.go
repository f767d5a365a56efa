// Package monitoring provides the diagnostic logger and the in-process
// metrics collector used by the inference pipeline.
package monitoring

import "log"

// Logf receives every diagnostic line from the pipeline and its stores.
// It is log.Printf unless replaced with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps Logf. nil mutes logging. Call it before starting pipelines.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that prefixes every message with "[name] " and
// forwards to whatever Logf is at call time.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
