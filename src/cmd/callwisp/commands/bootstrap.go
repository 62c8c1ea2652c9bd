// FILE: callwisp/src/cmd/callwisp/commands/bootstrap.go
package commands

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"callwisp/src/internal/config"

	"github.com/lixenwraith/log"
)

// commonFlags are accepted by every command that loads configuration
type commonFlags struct {
	configFile string
	quiet      bool
	logLevel   string
	logOutput  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "Config file path")
	fs.StringVar(&c.configFile, "c", "", "Config file path (shorthand)")
	fs.BoolVar(&c.quiet, "quiet", false, "Suppress diagnostics and informational output")
	fs.BoolVar(&c.quiet, "q", false, "Suppress diagnostics and informational output (shorthand)")
	fs.StringVar(&c.logLevel, "log-level", "", "Diagnostics level: debug, info, warn, error")
	fs.StringVar(&c.logOutput, "log-output", "", "Diagnostics output: file, stdout, stderr, split, all, none")
}

// load resolves configuration from file, environment and flag overrides
func (c *commonFlags) load() (*config.Config, error) {
	if c.configFile != "" {
		if _, err := os.Stat(c.configFile); err != nil {
			return nil, fmt.Errorf("config file not found: %s", c.configFile)
		}
		os.Setenv("CALLWISP_CONFIG_FILE", c.configFile)
	}

	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}

	if c.quiet {
		cfg.Quiet = true
	}
	if cfg.Logging == nil {
		cfg.Logging = config.DefaultLogConfig()
	}
	if c.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(c.logLevel)
	}
	if c.logOutput != "" {
		cfg.Logging.Output = c.logOutput
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if cfg.Quiet {
		out().SetQuiet(true)
	}
	return cfg, nil
}

// initDiagLogger sets up the application diagnostics logger from cfg.Logging
func initDiagLogger(cfg *config.Config) (*log.Logger, error) {
	logger := log.NewLogger()

	var configArgs []string

	if cfg.Quiet {
		// In quiet mode, disable ALL diagnostics output
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=false",
			"level=255")
		return logger, logger.InitWithDefaults(configArgs...)
	}

	levelValue, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	configArgs = append(configArgs, fmt.Sprintf("level=%d", levelValue))

	switch cfg.Logging.Output {
	case "none":
		configArgs = append(configArgs, "disable_file=true", "enable_stdout=false")

	case "stdout", "stderr":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target="+cfg.Logging.Output)

	case "split":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target=split")

	case "file":
		configArgs = append(configArgs, "enable_stdout=false")
		configureFileLogging(&configArgs, cfg)

	case "all":
		configArgs = append(configArgs, "enable_stdout=true")
		configureFileLogging(&configArgs, cfg)
		configureConsoleTarget(&configArgs, cfg)

	default:
		return nil, fmt.Errorf("invalid log output mode: %s", cfg.Logging.Output)
	}

	if cfg.Logging.Console != nil && cfg.Logging.Console.Format != "" {
		configArgs = append(configArgs, fmt.Sprintf("format=%s", cfg.Logging.Console.Format))
	}

	return logger, logger.InitWithDefaults(configArgs...)
}

// configureFileLogging sets up file-based logging parameters
func configureFileLogging(configArgs *[]string, cfg *config.Config) {
	if cfg.Logging.File != nil {
		*configArgs = append(*configArgs,
			fmt.Sprintf("directory=%s", cfg.Logging.File.Directory),
			fmt.Sprintf("name=%s", cfg.Logging.File.Name),
			fmt.Sprintf("max_size_mb=%d", cfg.Logging.File.MaxSizeMB),
			fmt.Sprintf("max_total_size_mb=%d", cfg.Logging.File.MaxTotalSizeMB))

		if cfg.Logging.File.RetentionHours > 0 {
			*configArgs = append(*configArgs,
				fmt.Sprintf("retention_period_hrs=%.1f", cfg.Logging.File.RetentionHours))
		}
	}
}

// configureConsoleTarget sets up console output parameters
func configureConsoleTarget(configArgs *[]string, cfg *config.Config) {
	target := "stderr"
	if cfg.Logging.Console != nil && cfg.Logging.Console.Target != "" {
		target = cfg.Logging.Console.Target
	}
	*configArgs = append(*configArgs, fmt.Sprintf("stdout_target=%s", target))
}

func parseLogLevel(level string) (int, error) {
	switch strings.ToLower(level) {
	case "debug":
		return int(log.LevelDebug), nil
	case "info":
		return int(log.LevelInfo), nil
	case "warn", "warning":
		return int(log.LevelWarn), nil
	case "error":
		return int(log.LevelError), nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}

func shutdownDiagLogger(logger *log.Logger) {
	if logger == nil {
		return
	}
	if err := logger.Shutdown(2 * time.Second); err != nil {
		Error("Logger shutdown error: %v\n", err)
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting
func newFlagSet(name string, help func() string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out().stderr)
	fs.Usage = func() { fmt.Fprint(out().stderr, help()) }
	return fs
}
