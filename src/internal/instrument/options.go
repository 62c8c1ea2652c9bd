// FILE: callwisp/src/internal/instrument/options.go
package instrument

import "strings"

// Mode selects what a wrapper does with a failure after logging it
type Mode int

const (
	// ModePropagate returns the error, or re-panics, after logging
	ModePropagate Mode = iota
	// ModeCatch logs the failure and returns the default value with a nil error
	ModeCatch
)

func (m Mode) String() string {
	if m == ModeCatch {
		return "catch"
	}
	return "propagate"
}

// ParseMode accepts "propagate" and "catch"
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "propagate", "log_call":
		return ModePropagate, true
	case "catch":
		return ModeCatch, true
	}
	return ModePropagate, false
}

// Options holds per-wrapper instrumentation settings
type Options struct {
	// Level for successful calls; failures are always ERROR
	Level string

	// Module recorded on every entry
	Module string

	Mode Mode

	// Returned in catch mode when its type matches the wrapped result
	Default any

	// Fraction of successful calls to log, 0..1. Nil logs every call.
	SampleRate *float64

	// Names of positional parameters, used to redact sensitive arguments
	ParamNames []string

	// Byte payloads at or above this size are replaced by metadata; 0 disables
	BinaryThreshold int
}

// Option configures an Instrumenter
type Option func(*Options)

// WithLevel sets the level for successful calls
func WithLevel(level string) Option {
	return func(o *Options) {
		o.Level = level
	}
}

// WithModule sets the module name recorded on entries
func WithModule(module string) Option {
	return func(o *Options) {
		o.Module = module
	}
}

// WithMode sets propagate or catch behavior
func WithMode(mode Mode) Option {
	return func(o *Options) {
		o.Mode = mode
	}
}

// Catch switches to catch mode with the given default result
func Catch(def any) Option {
	return func(o *Options) {
		o.Mode = ModeCatch
		o.Default = def
	}
}

// WithSampleRate logs roughly rate of successful calls. Failures are always logged.
func WithSampleRate(rate float64) Option {
	return func(o *Options) {
		o.SampleRate = &rate
	}
}

// WithParamNames names positional parameters for redaction
func WithParamNames(names ...string) Option {
	return func(o *Options) {
		o.ParamNames = names
	}
}

// SummarizeBinary replaces byte payloads of at least threshold bytes by metadata
func SummarizeBinary(threshold int) Option {
	return func(o *Options) {
		o.BinaryThreshold = threshold
	}
}
