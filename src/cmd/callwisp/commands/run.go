// FILE: callwisp/src/cmd/callwisp/commands/run.go
package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/service"
)

const (
	runModule        = "cli"
	defaultRunEnv    = "local"
	capturedMaxChars = 2000
	exitNotFound     = 127
	exitNotRunnable  = 126
)

// stringList collects a repeatable flag
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// runOptions holds the parsed `run` invocation
type runOptions struct {
	sinks       []string
	env         string
	passthrough bool
	command     []string
}

// RunCommand proxies a command and logs its execution as one call
type RunCommand struct {
	// stdin of the child; nil uses os.Stdin
	stdin io.Reader
}

// NewRunCommand creates the run command
func NewRunCommand() *RunCommand {
	return &RunCommand{}
}

func (c *RunCommand) Execute(args []string) error {
	var common commonFlags
	var sinks stringList
	opts := runOptions{}

	flags := newFlagSet("run", c.Help)
	common.register(flags)
	flags.Var(&sinks, "sink", "Sink spec, repeatable (e.g. sqlite:logs.db)")
	flags.StringVar(&opts.env, "env", "", "Environment tag (default: CALLWISP_ENV or 'local')")
	flags.BoolVar(&opts.passthrough, "passthrough", false, "Stream stdout/stderr directly instead of capturing")
	flags.BoolVar(&opts.passthrough, "p", false, "Shorthand for --passthrough")
	if err := flags.Parse(args); err != nil {
		return err
	}

	opts.command = flags.Args()
	if len(opts.command) == 0 {
		return fmt.Errorf("no command specified. Usage: callwisp run -- <command> [args...]")
	}
	opts.sinks = sinks

	cfg, err := common.load()
	if err != nil {
		return err
	}
	diag, err := initDiagLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer shutdownDiagLogger(diag)

	cfg.Logger.Sinks = resolveSinks(cfg, opts.sinks)
	opts.env = coalesceString(opts.env, cfg.Logger.Environment, defaultRunEnv)

	svc, err := service.NewService(cfg, diag)
	if err != nil {
		return err
	}

	code := c.execute(svc, opts)
	if err := svc.Shutdown(); err != nil {
		Error("callwisp: closing sinks: %v\n", err)
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// execute runs the command, emits its entry and returns the exit code to propagate
func (c *RunCommand) execute(svc *service.Service, opts runOptions) int {
	name := opts.command[0]
	cmd := exec.Command(name, opts.command[1:]...)
	cmd.Env = os.Environ()
	cmd.Stdin = c.stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}

	var stdout, stderr bytes.Buffer
	if opts.passthrough {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := processResult{
		command:  opts.command,
		env:      opts.env,
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		duration: elapsed,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.returnCode = exitErr.ExitCode()
		if result.returnCode < 0 {
			result.returnCode = 1
		}
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		svc.Logger().Emit(notFoundEntry(result))
		Error("callwisp: command not found: %s\n", name)
		return exitNotFound
	default:
		result.returnCode = exitNotRunnable
		result.startErr = err
	}

	svc.Logger().Emit(result.entry())

	if !opts.passthrough {
		// The child's own output is never subject to quiet mode
		o := out()
		io.WriteString(o.stdout, result.stdout)
		io.WriteString(o.stderr, result.stderr)
	}
	if result.startErr != nil {
		Error("callwisp: %v\n", result.startErr)
	}
	return result.returnCode
}

// processResult is one finished child process
type processResult struct {
	command    []string
	env        string
	stdout     string
	stderr     string
	returnCode int
	startErr   error
	duration   time.Duration
}

func (r processResult) baseEntry(level string) *core.LogEntry {
	e := core.NewEntry(level, r.command[0], runModule)
	if len(r.command) > 1 {
		e.Args = make([]any, len(r.command)-1)
		for i, a := range r.command[1:] {
			e.Args[i] = a
		}
		e.ArgTypes = core.TypeNames(e.Args)
	}
	language := detectLanguage(r.command[0])
	e.Kwargs = map[string]any{"language": language, "env": r.env}
	e.KwargTypes = map[string]string{"language": "string", "env": "string"}
	e.DurationMS = core.Float(float64(r.duration) / float64(time.Millisecond))
	e.Environment = r.env
	return e
}

func (r processResult) entry() *core.LogEntry {
	level := core.LevelInfo
	if r.returnCode != 0 {
		level = core.LevelError
	}
	e := r.baseEntry(level)

	if r.stdout != "" {
		e.ReturnValue = core.Truncate(r.stdout, capturedMaxChars)
		e.ReturnType = "string"
	}
	if r.returnCode != 0 {
		e.ExceptionType = "ProcessError"
		switch {
		case r.startErr != nil:
			e.Exception = core.Truncate(r.startErr.Error(), capturedMaxChars)
		case r.stderr != "":
			e.Exception = core.Truncate(r.stderr, capturedMaxChars)
		}
	}

	_ = e.Extra.Set("returncode", r.returnCode)
	_ = e.Extra.Set("cmd", strings.Join(r.command, " "))
	return e
}

func notFoundEntry(r processResult) *core.LogEntry {
	e := r.baseEntry(core.LevelError)
	e.Exception = "Command not found: " + r.command[0]
	e.ExceptionType = "FileNotFoundError"
	return e
}

// detectLanguage guesses the toolchain from the command name
func detectLanguage(cmd string) string {
	name := strings.ToLower(filepath.Base(cmd))
	switch {
	case name == "bash" || name == "sh" || name == "zsh" || strings.HasSuffix(name, ".sh"):
		return "bash"
	case name == "python" || name == "python3" || strings.HasSuffix(name, ".py"):
		return "python"
	case name == "go" || strings.HasSuffix(name, ".go"):
		return "go"
	case name == "cargo" || name == "rustc":
		return "rust"
	case name == "node" || name == "npm" || name == "npx" || name == "bun" || name == "deno":
		return "node"
	case name == "docker" || name == "docker-compose" || name == "podman":
		return "docker"
	case name == "make" || name == "cmake":
		return "make"
	}
	return "shell"
}

func (c *RunCommand) Description() string {
	return "Run a command and log its execution"
}

func (c *RunCommand) Help() string {
	return `Run Command - Proxy a command and log it as one call

Usage:
  callwisp run [options] -- <command> [args...]

Options:
  --sink <spec>        Sink spec, repeatable (default: logger.sinks from config)
  --env <name>         Environment tag (default: CALLWISP_ENV or 'local')
  -p, --passthrough    Stream output directly instead of capturing it
  -c, --config <path>  Config file path
  -q, --quiet          Suppress callwisp's own messages

The command's exit code is returned unchanged; a missing command exits 127.
Captured stdout becomes the return value and, on failure, stderr the exception
(each truncated to 2000 characters).

Examples:
  callwisp run -- bash deploy.sh prod
  callwisp run --sink sqlite:logs.db -- ./test.sh --suite=unit
  callwisp run -p --env ci -- go test ./...
`
}

// resolveSinks is the sink list `run` will use for cfg and explicit specs
func resolveSinks(cfg *config.Config, explicit []string) []string {
	if len(explicit) > 0 {
		return explicit
	}
	return cfg.Logger.Sinks
}
