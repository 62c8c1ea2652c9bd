// FILE: callwisp/src/cmd/callwisp/commands/router.go
package commands

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
)

// Handler defines the interface required for all subcommands.
type Handler interface {
	Execute(args []string) error
	Description() string
	Help() string
}

// ExitError carries a process exit code without an error message
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// CommandRouter handles the routing of CLI arguments to the appropriate subcommand handler.
type CommandRouter struct {
	commands map[string]Handler
}

// NewCommandRouter creates and initializes the command router with all available commands.
func NewCommandRouter() *CommandRouter {
	router := &CommandRouter{
		commands: make(map[string]Handler),
	}

	router.commands["run"] = NewRunCommand()
	router.commands["logs"] = NewLogsCommand()
	router.commands["serve"] = NewServeCommand()
	router.commands["tls"] = NewTLSCommand()
	router.commands["config"] = NewConfigCommand()
	router.commands["version"] = NewVersionCommand()
	router.commands["help"] = NewHelpCommand(router)

	return router
}

// Route executes the subcommand named by args[1]. Without a command the general help is shown.
func (r *CommandRouter) Route(args []string) error {
	if len(args) < 2 {
		return r.commands["help"].Execute(nil)
	}

	cmdName := args[1]
	switch cmdName {
	case "-h", "--help":
		return r.commands["help"].Execute(nil)
	case "-v", "--version":
		return r.commands["version"].Execute(nil)
	}

	handler, exists := r.commands[cmdName]
	if !exists {
		return fmt.Errorf("unknown command: %s\n\nRun 'callwisp help' for usage", cmdName)
	}

	// `run` passes everything after its own flags to the child process
	if cmdName != "run" && cmdName != "help" {
		for _, arg := range args[2:] {
			if arg == "-h" || arg == "--help" {
				fmt.Fprint(out().stdout, handler.Help())
				return nil
			}
		}
	}

	if err := handler.Execute(args[2:]); !errors.Is(err, flag.ErrHelp) {
		return err
	}
	return nil
}

// GetCommand returns a specific command handler by its name.
func (r *CommandRouter) GetCommand(name string) (Handler, bool) {
	cmd, exists := r.commands[name]
	return cmd, exists
}

// GetCommands returns a map of all registered commands.
func (r *CommandRouter) GetCommands() map[string]Handler {
	return r.commands
}

// ShowCommands displays a list of available subcommands to stderr.
func (r *CommandRouter) ShowCommands() {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, r.commands[name].Description())
	}
	fmt.Fprintln(os.Stderr, "\nUse 'callwisp <command> --help' for command-specific help")
}

// coalesceString returns the first non-empty string from a list of arguments.
func coalesceString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
