// FILE: callwisp/src/cmd/callwisp/commands/output.go
package commands

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// OutputHandler manages user-facing output respecting quiet mode.
// Proxied command output from `run` bypasses quiet mode.
type OutputHandler struct {
	quiet  bool
	mu     sync.RWMutex
	stdout io.Writer
	stderr io.Writer
}

var (
	output   *OutputHandler
	outputMu sync.Mutex
)

// InitOutputHandler initializes the global output handler
func InitOutputHandler(quiet bool) {
	SetOutput(os.Stdout, os.Stderr, quiet)
}

// SetOutput replaces the global output handler writers
func SetOutput(stdout, stderr io.Writer, quiet bool) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = &OutputHandler{
		quiet:  quiet,
		stdout: stdout,
		stderr: stderr,
	}
}

func out() *OutputHandler {
	outputMu.Lock()
	defer outputMu.Unlock()
	if output == nil {
		output = &OutputHandler{stdout: os.Stdout, stderr: os.Stderr}
	}
	return output
}

// Print writes to stdout if not in quiet mode
func (o *OutputHandler) Print(format string, args ...any) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if !o.quiet {
		fmt.Fprintf(o.stdout, format, args...)
	}
}

// Error writes to stderr if not in quiet mode
func (o *OutputHandler) Error(format string, args ...any) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if !o.quiet {
		fmt.Fprintf(o.stderr, format, args...)
	}
}

// IsQuiet returns the current quiet mode status
func (o *OutputHandler) IsQuiet() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.quiet
}

// SetQuiet updates quiet mode
func (o *OutputHandler) SetQuiet(quiet bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quiet = quiet
}

// Print writes through the global output handler
func Print(format string, args ...any) {
	out().Print(format, args...)
}

// Error writes through the global output handler
func Error(format string, args ...any) {
	out().Error(format, args...)
}
