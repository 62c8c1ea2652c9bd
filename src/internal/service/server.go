// FILE: callwisp/src/internal/service/server.go
package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/instrument"
	"callwisp/src/internal/limit"
	"callwisp/src/internal/tls"
	"callwisp/src/internal/version"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lixenwraith/log"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 1000
	shutdownTimeout   = 5 * time.Second
)

// RecentSource answers GET /logs
type RecentSource interface {
	Recent(level string, limit int) []*core.LogEntry
}

// ServerOptions wires the ingest server to the rest of the process
type ServerOptions struct {
	Config  config.ServeConfig
	Emitter instrument.Emitter
	Recent  RecentSource
	Stats   func() map[string]any
	Logger  *log.Logger
}

// Server accepts call records over HTTP and emits them through a Logger
type Server struct {
	cfg     config.ServeConfig
	emitter instrument.Emitter
	recent  RecentSource
	stats   func() map[string]any
	logger  *log.Logger

	server    *fasthttp.Server
	ipChecker *limit.IPChecker
	limiter   *limit.RateLimiter
	jwtParser *jwt.Parser
	jwtKey    []byte
	tls       *tls.ServerManager
	startTime time.Time

	stored   atomic.Uint64
	invalid  atomic.Uint64
	refused  atomic.Uint64
	requests atomic.Uint64
}

// NewServer creates an ingest server. Emitter is required.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Emitter == nil {
		return nil, fmt.Errorf("ingest server: emitter is required")
	}
	tlsManager, err := tls.NewServerManager(&opts.Config.TLS, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("ingest server: %w", err)
	}

	s := &Server{
		cfg:       opts.Config,
		emitter:   opts.Emitter,
		recent:    opts.Recent,
		stats:     opts.Stats,
		logger:    opts.Logger,
		ipChecker: limit.NewIPChecker(&opts.Config.Access, opts.Logger),
		limiter: limit.NewRateLimiter(opts.Config.Access.RequestsPerSecond,
			int(opts.Config.Access.Burst), opts.Logger),
		tls:       tlsManager,
		startTime: time.Now(),
	}

	if opts.Config.JWTSecret != "" {
		parserOpts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithLeeway(5 * time.Second),
			jwt.WithExpirationRequired(),
		}
		if opts.Config.JWTIssuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(opts.Config.JWTIssuer))
		}
		s.jwtParser = jwt.NewParser(parserOpts...)
		s.jwtKey = []byte(opts.Config.JWTSecret)
	}

	maxBody := int(opts.Config.MaxBodyKB) * 1024
	if maxBody <= 0 {
		maxBody = fasthttp.DefaultMaxRequestBodySize
	}
	s.server = &fasthttp.Server{
		Name:               version.UserAgent(),
		Handler:            s.requestHandler,
		MaxRequestBodySize: maxBody,
		CloseOnShutdown:    true,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
	}
	return s, nil
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.FormatInt(s.cfg.Port, 10))
}

// ListenAndServe listens on the configured address and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("ingest server: listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
// Connections are wrapped in TLS when enabled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ln = s.tls.Listener(ln)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logInfo("Ingest server starting", "addr", ln.Addr().String(), "tls", s.tls != nil)
		if err := s.server.Serve(ln); err != nil {
			return fmt.Errorf("ingest server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.server.ShutdownWithContext(shutdownCtx)
		s.limiter.Shutdown()
		s.logInfo("Ingest server stopped")
		return err
	})

	return g.Wait()
}

// GetStats returns request counters
func (s *Server) GetStats() map[string]any {
	return map[string]any{
		"requests":     s.requests.Load(),
		"stored":       s.stored.Load(),
		"invalid":      s.invalid.Load(),
		"refused":      s.refused.Load(),
		"uptime_secs":  int64(time.Since(s.startTime).Seconds()),
		"ip_access":    s.ipChecker.GetStats(),
		"rate_limit":   s.limiter.GetStats(),
		"auth_enabled": s.jwtParser != nil,
		"tls":          s.tls.GetStats(),
	}
}

func (s *Server) requestHandler(ctx *fasthttp.RequestCtx) {
	s.requests.Add(1)
	path := string(ctx.Path())
	method := string(ctx.Method())

	if path == "/health" && method == fasthttp.MethodGet {
		s.writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"status":  "ok",
			"version": version.Short(),
			"uptime":  int64(time.Since(s.startTime).Seconds()),
		})
		return
	}

	if !s.ipChecker.IsAllowed(ctx.RemoteAddr()) {
		s.refused.Add(1)
		s.writeError(ctx, fasthttp.StatusForbidden, "Forbidden")
		return
	}
	if !s.limiter.Allow(limit.HostOf(ctx.RemoteAddr())) {
		s.refused.Add(1)
		ctx.Response.Header.Set("Retry-After", "1")
		s.writeError(ctx, fasthttp.StatusTooManyRequests, "Rate limit exceeded")
		return
	}
	if err := s.authenticate(ctx); err != nil {
		s.refused.Add(1)
		s.logWarn("Rejected unauthenticated request", "path", path, "error", err)
		ctx.Response.Header.Set("WWW-Authenticate", `Bearer realm="callwisp"`)
		s.writeError(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
		return
	}

	switch {
	case path == "/log" && method == fasthttp.MethodPost:
		s.handleLog(ctx)
	case path == "/log/batch" && method == fasthttp.MethodPost:
		s.handleBatch(ctx)
	case path == "/logs" && method == fasthttp.MethodGet:
		s.handleQuery(ctx)
	case path == "/stats" && method == fasthttp.MethodGet:
		s.handleStats(ctx)
	default:
		s.writeJSON(ctx, fasthttp.StatusNotFound, map[string]any{
			"error": "Not Found",
			"endpoints": []string{
				"POST /log", "POST /log/batch", "GET /logs", "GET /stats", "GET /health",
			},
		})
	}
}

// authenticate validates the bearer token when a secret is configured
func (s *Server) authenticate(ctx *fasthttp.RequestCtx) error {
	if s.jwtParser == nil {
		return nil
	}
	header := string(ctx.Request.Header.Peek("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return fmt.Errorf("missing bearer token")
	}

	claims := jwt.MapClaims{}
	parsed, err := s.jwtParser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.jwtKey, nil
	})
	if err != nil {
		return fmt.Errorf("JWT validation failed: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid JWT token")
	}
	return nil
}

func (s *Server) handleLog(ctx *fasthttp.RequestCtx) {
	body := ctx.PostBody()
	if len(body) == 0 {
		s.writeError(ctx, fasthttp.StatusBadRequest, "Empty request body")
		return
	}

	item, err := decodeItem(body)
	if err != nil {
		s.invalid.Add(1)
		s.writeError(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("Invalid log format: %v", err))
		return
	}

	s.emit(item.entry)
	s.writeJSON(ctx, fasthttp.StatusOK, item.ack)
}

func (s *Server) handleBatch(ctx *fasthttp.RequestCtx) {
	body := ctx.PostBody()
	if len(body) == 0 {
		s.writeError(ctx, fasthttp.StatusBadRequest, "Empty request body")
		return
	}

	items, err := decodeBatch(body)
	if err != nil {
		s.invalid.Add(1)
		s.writeError(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("Invalid batch format: %v", err))
		return
	}

	results := make([]map[string]any, 0, len(items))
	for _, item := range items {
		s.emit(item.entry)
		results = append(results, item.ack)
	}
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"stored":  len(results),
		"results": results,
	})
}

func (s *Server) handleQuery(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	level := string(args.Peek("level"))

	queryLimit := defaultQueryLimit
	if raw := args.Peek("limit"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil || n < 1 || n > maxQueryLimit {
			s.writeError(ctx, fasthttp.StatusBadRequest,
				fmt.Sprintf("limit must be an integer between 1 and %d", maxQueryLimit))
			return
		}
		queryLimit = n
	}

	entries := []*core.LogEntry{}
	if s.recent != nil {
		if found := s.recent.Recent(level, queryLimit); found != nil {
			entries = found
		}
	}
	s.writeJSON(ctx, fasthttp.StatusOK, entries)
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	out := map[string]any{"server": s.GetStats()}
	if s.stats != nil {
		out["service"] = s.stats()
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) emit(entry *core.LogEntry) {
	s.emitter.Emit(entry)
	s.stored.Add(1)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	s.writeJSON(ctx, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		s.logWarn("Failed to encode response", "error", err)
	}
}

func (s *Server) logInfo(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Info(append([]any{"msg", msg, "component", "ingest_server"}, kv...)...)
	}
}

func (s *Server) logWarn(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Warn(append([]any{"msg", msg, "component", "ingest_server"}, kv...)...)
	}
}
