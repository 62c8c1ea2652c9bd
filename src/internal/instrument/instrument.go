// FILE: callwisp/src/internal/instrument/instrument.go
package instrument

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"callwisp/src/internal/core"
	"callwisp/src/internal/redact"
)

// Emitter receives finished entries; *logger.Logger implements it
type Emitter interface {
	Emit(entry *core.LogEntry)
}

// Instrumenter builds call entries for wrapped functions and emits them
type Instrumenter struct {
	emitter  Emitter
	opts     Options
	registry *Registry
	random   func() float64
}

// New creates an instrumenter. Successful calls log at DEBUG unless overridden.
func New(emitter Emitter, opts ...Option) *Instrumenter {
	in := &Instrumenter{
		emitter: emitter,
		opts:    Options{Level: core.LevelDebug},
		random:  rand.Float64,
	}
	for _, opt := range opts {
		opt(&in.opts)
	}
	return in
}

// With returns a copy sharing the emitter and registry, with opts applied on top
func (in *Instrumenter) With(opts ...Option) *Instrumenter {
	clone := *in
	clone.opts.ParamNames = append([]string(nil), in.opts.ParamNames...)
	for _, opt := range opts {
		opt(&clone.opts)
	}
	return &clone
}

// WithRegistry records every wrapped function in r
func (in *Instrumenter) WithRegistry(r *Registry) *Instrumenter {
	clone := *in
	clone.registry = r
	return &clone
}

// Options returns the effective settings
func (in *Instrumenter) Options() Options {
	return in.opts
}

func (in *Instrumenter) register(name string) {
	if in.registry != nil {
		in.registry.add(name, in.opts)
	}
}

func (in *Instrumenter) sampled() bool {
	rate := in.opts.SampleRate
	if rate == nil || *rate >= 1 {
		return true
	}
	if *rate <= 0 {
		return false
	}
	return in.random() < *rate
}

// Call runs fn and logs it as one call of name with the given arguments.
// Errors and panics are logged at ERROR with a stack trace regardless of sampling.
func Call[T any](in *Instrumenter, name string, args []any, kwargs map[string]any, fn func() (T, error)) (result T, err error) {
	start := time.Now()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		excType := "panic"
		if e, ok := r.(error); ok {
			excType = errorType(e)
		}
		in.emitFailure(name, args, kwargs, fmt.Sprint(r), excType, string(debug.Stack()), time.Since(start))

		if in.opts.Mode == ModeCatch {
			result, err = catchDefault[T](in), nil
			return
		}
		panic(r)
	}()

	result, err = fn()
	elapsed := time.Since(start)

	if err != nil {
		in.emitFailure(name, args, kwargs, err.Error(), errorType(err), string(debug.Stack()), elapsed)
		if in.opts.Mode == ModeCatch {
			return catchDefault[T](in), nil
		}
		return result, err
	}

	if in.sampled() {
		in.emitSuccess(name, args, kwargs, result, elapsed)
	}
	return result, nil
}

// Do runs an error-only function under instrumentation
func Do(in *Instrumenter, name string, args []any, kwargs map[string]any, fn func() error) error {
	_, err := Call(in, name, args, kwargs, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Wrap0 instruments a function without arguments
func Wrap0[R any](in *Instrumenter, name string, fn func() (R, error)) func() (R, error) {
	in.register(name)
	return func() (R, error) {
		return Call(in, name, nil, nil, fn)
	}
}

// Wrap1 instruments a one-argument function
func Wrap1[A, R any](in *Instrumenter, name string, fn func(A) (R, error)) func(A) (R, error) {
	in.register(name)
	return func(a A) (R, error) {
		return Call(in, name, []any{a}, nil, func() (R, error) {
			return fn(a)
		})
	}
}

// Wrap2 instruments a two-argument function
func Wrap2[A, B, R any](in *Instrumenter, name string, fn func(A, B) (R, error)) func(A, B) (R, error) {
	in.register(name)
	return func(a A, b B) (R, error) {
		return Call(in, name, []any{a, b}, nil, func() (R, error) {
			return fn(a, b)
		})
	}
}

// WrapKw instruments a function taking keyword-style options
func WrapKw[R any](in *Instrumenter, name string, fn func(map[string]any) (R, error)) func(map[string]any) (R, error) {
	in.register(name)
	return func(kwargs map[string]any) (R, error) {
		return Call(in, name, nil, kwargs, func() (R, error) {
			return fn(kwargs)
		})
	}
}

// Event emits a discrete entry that is not tied to a wrapped call.
// Reserved extra keys populate the typed fields.
func (in *Instrumenter) Event(level, name string, extra map[string]any) error {
	entry := core.NewEntry(level, name, in.opts.Module)
	if err := entry.Extra.SetFields(extra); err != nil {
		return fmt.Errorf("event '%s': %w", name, err)
	}
	in.emitter.Emit(entry)
	return nil
}

func (in *Instrumenter) newEntry(level, name string, args []any, kwargs map[string]any, elapsed time.Duration) *core.LogEntry {
	entry := core.NewEntry(level, name, in.opts.Module)
	if len(args) > 0 {
		entry.Args = redact.Args(append([]any(nil), args...), in.opts.ParamNames)
		entry.ArgTypes = core.TypeNames(args)
	}
	if len(kwargs) > 0 {
		entry.Kwargs = maps.Clone(kwargs)
		entry.KwargTypes = make(map[string]string, len(kwargs))
		for k, v := range kwargs {
			entry.KwargTypes[k] = core.TypeName(v)
		}
	}
	entry.SetDuration(elapsed)
	return entry
}

func (in *Instrumenter) emitSuccess(name string, args []any, kwargs map[string]any, result any, elapsed time.Duration) {
	entry := in.newEntry(in.opts.Level, name, args, kwargs, elapsed)
	if _, unit := result.(struct{}); !unit {
		entry.ReturnValue = result
		entry.ReturnType = core.TypeName(result)
	}
	summarize(entry, in.opts.BinaryThreshold)
	in.emitter.Emit(entry)
}

func (in *Instrumenter) emitFailure(name string, args []any, kwargs map[string]any, msg, excType, stack string, elapsed time.Duration) {
	entry := in.newEntry(core.LevelError, name, args, kwargs, elapsed)
	entry.Exception = msg
	entry.ExceptionType = excType
	entry.Traceback = stack
	summarize(entry, in.opts.BinaryThreshold)
	in.emitter.Emit(entry)
}

func catchDefault[T any](in *Instrumenter) T {
	var zero T
	if def, ok := in.opts.Default.(T); ok {
		return def
	}
	return zero
}

// errorType names the concrete error type, unwrapping fmt.Errorf chains to the root
func errorType(err error) string {
	for {
		if !isWrapper(err) {
			break
		}
		inner := errors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}
	return strings.TrimPrefix(reflect.TypeOf(err).String(), "*")
}

func isWrapper(err error) bool {
	name := reflect.TypeOf(err).String()
	return name == "*fmt.wrapError" || name == "*fmt.wrapErrors"
}
