// FILE: callwisp/src/cmd/callwisp/commands/config.go
package commands

import (
	"fmt"
	"os"

	"callwisp/src/internal/config"
)

// ConfigCommand writes the effective configuration as a TOML file
type ConfigCommand struct{}

func NewConfigCommand() *ConfigCommand {
	return &ConfigCommand{}
}

func (c *ConfigCommand) Execute(args []string) error {
	var common commonFlags
	var outPath string
	var force bool

	flags := newFlagSet("config", c.Help)
	common.register(flags)
	flags.StringVar(&outPath, "out", "", "Output file (default: the resolved config path)")
	flags.StringVar(&outPath, "o", "", "Shorthand for --out")
	flags.BoolVar(&force, "force", false, "Overwrite an existing file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}

	if outPath == "" {
		outPath = config.GetConfigPath()
	}
	if _, err := os.Stat(outPath); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", outPath)
	}

	if err := cfg.SaveToFile(outPath); err != nil {
		return err
	}
	Print("Configuration written to %s\n", outPath)
	return nil
}

func (c *ConfigCommand) Description() string {
	return "Write the effective configuration to a TOML file"
}

func (c *ConfigCommand) Help() string {
	return `Config Command - Write the effective configuration

Usage:
  callwisp config [options]

Defaults, the config file and CALLWISP_* variables are merged, validated and
written out, which gives a starting point for a hand-edited config file.

Options:
  -o, --out <path>     Output file (default: ~/.config/callwisp.toml or CALLWISP_CONFIG_*)
      --force          Overwrite an existing file
  -c, --config <path>  Config file to start from

Examples:
  callwisp config --out callwisp.toml
  CALLWISP_SINKS=sqlite:ci.db,jsonl:ci.jsonl callwisp config -o ci.toml
`
}
