// FILE: callwisp/src/cmd/callwisp/commands/version.go
package commands

import (
	"fmt"

	"callwisp/src/internal/version"
)

// VersionCommand handles version display
type VersionCommand struct{}

// NewVersionCommand creates a new version command
func NewVersionCommand() *VersionCommand {
	return &VersionCommand{}
}

func (c *VersionCommand) Execute(args []string) error {
	fmt.Fprintf(out().stdout, "callwisp %s\n", version.String())
	return nil
}

func (c *VersionCommand) Description() string {
	return "Show version information"
}

func (c *VersionCommand) Help() string {
	return `Version Command - Show callwisp version information

Usage:
  callwisp version
  callwisp --version

Output includes:
  - Version number
  - Git commit hash (if available)
  - Build time
`
}
