// FILE: callwisp/src/internal/sink/env.go
package sink

import (
	"os"
	"strings"

	"callwisp/src/internal/core"

	"github.com/google/uuid"
)

// Variables consulted in priority order
var (
	environmentVars = []string{"CALLWISP_ENV", "APP_ENV", "ENVIRONMENT", "ENV", "NODE_ENV", "FLASK_ENV", "DJANGO_ENV"}
	traceIDVars     = []string{"TRACE_ID", "X_TRACE_ID", "OTEL_TRACE_ID", "DD_TRACE_ID", "REQUEST_ID"}
	versionVars     = []string{"APP_VERSION", "VERSION", "GIT_SHA", "GIT_COMMIT", "GITHUB_SHA", "CI_COMMIT_SHA"}
)

const (
	traceIDLength = 16
	versionLength = 12
)

// dockerEnvFile marks a docker container; a variable for tests
var dockerEnvFile = "/.dockerenv"

// DetectEnvironment resolves the deployment environment name
func DetectEnvironment() string {
	for _, name := range environmentVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return strings.ToLower(v)
		}
	}

	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "k8s"
	}
	if os.Getenv("DOCKER_CONTAINER") != "" {
		return "docker"
	}
	if _, err := os.Stat(dockerEnvFile); err == nil {
		return "docker"
	}

	if os.Getenv("CI") != "" {
		return "ci"
	}
	if os.Getenv("GITHUB_ACTIONS") != "" {
		return "github-actions"
	}
	if os.Getenv("GITLAB_CI") != "" {
		return "gitlab-ci"
	}

	return "local"
}

// DetectTraceID returns an externally supplied trace id or a new random one
func DetectTraceID() string {
	for _, name := range traceIDVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return NewTraceID()
}

// NewTraceID generates a random 16 character hex identifier
func NewTraceID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:traceIDLength]
}

// DetectVersion returns the application version from the environment, or ""
func DetectVersion() string {
	for _, name := range versionVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if len(v) > versionLength {
				v = v[:versionLength]
			}
			return v
		}
	}
	return ""
}

// EnvTagger fills missing environment, trace id and version tags before forwarding
type EnvTagger struct {
	delegate    Sink
	environment string
	traceID     string
	version     string
}

// EnvTaggerOptions supplies explicit tag values; empty values are auto-detected
// when AutoDetect is set
type EnvTaggerOptions struct {
	Environment string
	TraceID     string
	Version     string
	AutoDetect  bool
}

// NewEnvTagger resolves tag values once and wraps delegate
func NewEnvTagger(delegate Sink, opts EnvTaggerOptions) *EnvTagger {
	t := &EnvTagger{
		delegate:    delegate,
		environment: opts.Environment,
		traceID:     opts.TraceID,
		version:     opts.Version,
	}

	if opts.AutoDetect {
		if t.environment == "" {
			t.environment = DetectEnvironment()
		}
		if t.traceID == "" {
			t.traceID = DetectTraceID()
		}
		if t.version == "" {
			t.version = DetectVersion()
		}
	}

	return t
}

func (t *EnvTagger) Write(entry *core.LogEntry) error {
	if entry.Environment == "" {
		entry.Environment = t.environment
	}
	if entry.TraceID == "" {
		entry.TraceID = t.traceID
	}
	if entry.Version == "" {
		entry.Version = t.version
	}
	return t.delegate.Write(entry)
}

func (t *EnvTagger) Close() error {
	return t.delegate.Close()
}

// Environment returns the resolved environment tag
func (t *EnvTagger) Environment() string { return t.environment }

// TraceID returns the resolved trace id
func (t *EnvTagger) TraceID() string { return t.traceID }

// Version returns the resolved version tag
func (t *EnvTagger) Version() string { return t.version }
