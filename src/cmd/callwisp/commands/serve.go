// FILE: callwisp/src/cmd/callwisp/commands/serve.go
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/service"
	"callwisp/src/internal/version"

	"github.com/lixenwraith/log"
)

const statusInterval = 30 * time.Second

// ServeCommand runs the HTTP ingest server
type ServeCommand struct{}

// NewServeCommand creates the serve command
func NewServeCommand() *ServeCommand {
	return &ServeCommand{}
}

func (c *ServeCommand) Execute(args []string) error {
	var common commonFlags
	var host string
	var port int64

	flags := newFlagSet("serve", c.Help)
	common.register(flags)
	flags.StringVar(&host, "host", "", "Bind host (default: serve.host)")
	flags.Int64Var(&port, "port", 0, "Bind port (default: serve.port)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Serve.Host = host
	}
	if port > 0 {
		cfg.Serve.Port = port
	}
	ensureMemorySink(cfg)

	diag, err := initDiagLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer shutdownDiagLogger(diag)

	svc, err := service.NewService(cfg, diag)
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	srv, err := service.NewServer(service.ServerOptions{
		Config:  cfg.Serve,
		Emitter: svc.Logger(),
		Recent:  svc,
		Stats:   svc.GetGlobalStats,
		Logger:  diag,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	diag.Info("msg", "callwisp serve starting",
		"version", version.String(),
		"addr", srv.Addr(),
		"sinks", strings.Join(cfg.Logger.Sinks, ","))
	displayEndpoints(srv.Addr(), cfg.Serve.TLS.Enabled)

	if os.Getenv("CALLWISP_DISABLE_STATUS_REPORTER") != "1" {
		go statusReporter(ctx, svc, diag)
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	diag.Info("msg", "Shutdown complete")
	return nil
}

// ensureMemorySink keeps recent entries queryable over GET /logs
func ensureMemorySink(cfg *config.Config) {
	for _, spec := range cfg.Logger.Sinks {
		kind, _, _ := strings.Cut(spec, ":")
		if strings.EqualFold(strings.TrimSpace(kind), "memory") {
			return
		}
	}
	cfg.Logger.Sinks = append(cfg.Logger.Sinks, fmt.Sprintf("memory:%d", cfg.Serve.RecentLimit))
}

func displayEndpoints(addr string, tlsEnabled bool) {
	scheme := "http"
	if tlsEnabled {
		scheme = "https"
	}
	Print("Starting callwisp ingest server on %s://%s\n", scheme, addr)
	Print("  POST /log        log single entry\n")
	Print("  POST /log/batch  log multiple entries\n")
	Print("  GET  /logs       query recent entries\n")
	Print("  GET  /stats      service statistics\n")
	Print("  GET  /health     health check\n\n")
}

// statusReporter periodically logs service counters
func statusReporter(ctx context.Context, svc *service.Service, logger *log.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("msg", "Panic in status reporter",
							"component", "status_reporter",
							"panic", r)
					}
				}()

				stats := svc.GetGlobalStats()
				logger.Debug("msg", "Status report",
					"component", "status_reporter",
					"emitted", stats["emitted"],
					"dropped", stats["dropped"],
					"sink_errors", stats["sink_errors"],
					"functions", stats["functions"])
			}()
		}
	}
}

func (c *ServeCommand) Description() string {
	return "Start the HTTP ingest server"
}

func (c *ServeCommand) Help() string {
	return `Serve Command - Accept call records over HTTP

Usage:
  callwisp serve [options]

Options:
  --host <host>        Bind host (default: serve.host, 0.0.0.0)
  --port <port>        Bind port (default: serve.port, 8080)
  -c, --config <path>  Config file path
  -q, --quiet          Suppress diagnostics and informational output

Endpoints:
  POST /log            One entry: {"cmd": "...", "args": [...], "success": false, ...}
                       or a full record with function_name
  POST /log/batch      {"entries": [...]}
  GET  /logs           Recent entries; ?level=ERROR&limit=50 (1..1000)
  GET  /stats          Server and logger statistics
  GET  /health         Health check

Authentication and access control come from [serve] in the config file:
jwt_secret, jwt_issuer and [serve.access].
`
}
