// Package monitoring holds the process-wide diagnostic log handle.
//
// Components never reference log.Printf directly. They accept a LogFunc
// (usually through an Options struct) and fall back to Logf when none was
// injected, so tests can capture or mute output without touching globals.
package monitoring

import "log"

// LogFunc is the printf-style signature shared by every diagnostic logger.
type LogFunc func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf LogFunc = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		Logf = Discard
		return
	}
	Logf = f
}

// Discard drops every message.
func Discard(string, ...interface{}) {}

// Resolve returns f when it is set, otherwise a LogFunc that looks up Logf
// at call time. Looking the global up lazily means a logger installed with
// SetLogger after a component was constructed still takes effect.
func Resolve(f LogFunc) LogFunc {
	if f != nil {
		return f
	}
	return func(format string, v ...interface{}) {
		Logf(format, v...)
	}
}

// WithPrefix returns a LogFunc that prepends prefix to every format string.
func WithPrefix(prefix string, f LogFunc) LogFunc {
	f = Resolve(f)
	return func(format string, v ...interface{}) {
		f(prefix+format, v...)
	}
}
