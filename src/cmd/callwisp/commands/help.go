// FILE: callwisp/src/cmd/callwisp/commands/help.go
package commands

import (
	"fmt"
	"sort"
	"strings"
)

// generalHelpTemplate is the default help message shown when no specific command is requested.
const generalHelpTemplate = `callwisp: automatic function and command call logging.

Usage:
  callwisp <command> [options]

Commands:
%s

Common Options:
  -c, --config <path>      Path to configuration file (default: ~/.config/callwisp.toml)
  -q, --quiet              Suppress callwisp's own output
      --log-level <level>  Diagnostics level: debug, info, warn, error
      --log-output <mode>  Diagnostics output: file, stdout, stderr, split, all, none
  -h, --help               Display help and exit
  -v, --version            Display version information and exit

For command-specific help:
  callwisp help <command>
  callwisp <command> --help

Configuration Sources (Precedence: Env > File > Defaults, then command flags):
  CALLWISP_CONFIG_FILE     Config file path
  CALLWISP_CONFIG_DIR      Config directory
  CALLWISP_LEVEL           Minimum entry level
  CALLWISP_SINKS           Comma separated sink specs, e.g. sqlite:logs.db,jsonl:calls.jsonl
  CALLWISP_ENV             Environment tag
  CALLWISP_LLM_MODEL       Enables LLM analysis with this model
  CALLWISP_META_THRESHOLD  Byte size above which binary arguments are summarized
  CALLWISP_DB              Database read by 'callwisp logs'

Examples:
  callwisp run -- bash deploy.sh prod
  callwisp run --sink sqlite:ci.db -- go test ./...
  callwisp logs ci.db --errors --last 24h
  callwisp serve --port 9090
  callwisp tls --self-signed --cn localhost --hosts localhost,127.0.0.1
`

// HelpCommand handles the display of general or command-specific help messages.
type HelpCommand struct {
	router *CommandRouter
}

// NewHelpCommand creates a new help command handler.
func NewHelpCommand(router *CommandRouter) *HelpCommand {
	return &HelpCommand{router: router}
}

// Execute displays the appropriate help message based on the provided arguments.
func (c *HelpCommand) Execute(args []string) error {
	if len(args) > 0 && args[0] != "" {
		cmdName := args[0]

		if handler, exists := c.router.GetCommand(cmdName); exists {
			fmt.Fprint(out().stdout, handler.Help())
			return nil
		}

		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Fprintf(out().stdout, generalHelpTemplate, c.formatCommandList())
	return nil
}

// Description returns a brief one-line description of the command.
func (c *HelpCommand) Description() string {
	return "Display help information"
}

// Help returns the detailed help text for the 'help' command itself.
func (c *HelpCommand) Help() string {
	return `Help Command - Display help information

Usage:
  callwisp help              Show general help
  callwisp help <command>    Show help for a specific command

Examples:
  callwisp help run          # Show run command help
  callwisp run --help        # Alternative way to get command help
`
}

// formatCommandList creates a formatted and aligned list of all available commands.
func (c *HelpCommand) formatCommandList() string {
	commands := c.router.GetCommands()

	names := make([]string, 0, len(commands))
	maxLen := 0
	for name := range commands {
		names = append(names, name)
		if len(name) > maxLen {
			maxLen = len(name)
		}
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		handler := commands[name]
		padding := strings.Repeat(" ", maxLen-len(name)+2)
		lines = append(lines, fmt.Sprintf("  %s%s%s", name, padding, handler.Description()))
	}

	return strings.Join(lines, "\n")
}
