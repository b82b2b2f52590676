package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/alan"
	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"
)

var Service = ""

// Config is the process configuration for one atgraph instance, loaded
// via chu from file + environment (ATGRAPH_ prefix) + optional remote loaders.
type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// Composition is the path to the pipeline composition file this
	// instance should run (JSON, JSONC, or YAML). Required by both "run"
	// and "serve"; there is no control-plane-only mode without it.
	Composition string `cfg:"composition"`

	// Gateway configures bearer-token auth for the chat-completions
	// ingress. With no tokens configured the ingress is open, whereas the
	// control-plane API rejects every request when no admin token is set.
	Gateway Gateway `cfg:"gateway"`

	ControlPlane ControlPlane `cfg:"control_plane"`
	Server       Server       `cfg:"server"`
	Telemetry    tell.Config  `cfg:"telemetry,noprefix"`
}

type Server struct {
	BasePath string `cfg:"base_path"`

	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`

	// ForwardAuth, if set, forwards auth checks to an external service
	// before the bearer-token check runs.
	ForwardAuth *mforwardauth.ForwardAuth `cfg:"forward_auth"`

	// AdminToken, if set, protects every control-plane endpoint (reads
	// and mutations alike) with bearer-token auth.
	// If not set, those endpoints are disabled (403 Forbidden).
	AdminToken string `cfg:"admin_token" log:"-"`

	// UserHeader is the HTTP header carrying the authenticated caller's
	// identity, populated by ForwardAuth when configured.
	UserHeader string `cfg:"user_header" default:"X-User"`
}

// Gateway configures bearer tokens accepted on /v1/chat/completions.
// If AuthTokens is empty, the ingress allows unauthenticated access.
type Gateway struct {
	AuthTokens []AuthTokenConfig `cfg:"auth_tokens"`
}

type AuthTokenConfig struct {
	Token string `cfg:"token" json:"token" log:"-"`
	Name  string `cfg:"name" json:"name"`

	// ExpiresAt is an optional RFC3339 expiration timestamp. Empty means
	// the token never expires.
	ExpiresAt string `cfg:"expires_at" json:"expires_at"`
}

// ControlPlane configures the cluster-state process: heartbeat staleness
// threshold and default replica weight.
type ControlPlane struct {
	Enabled bool `cfg:"enabled"`

	HeartbeatThreshold time.Duration `cfg:"heartbeat_threshold" default:"30s"`

	// DefaultNodeWeight is loaded but not read by the server or the
	// scheduler: a node registered without an explicit weight always gets
	// weight 1.
	DefaultNodeWeight float64 `cfg:"default_node_weight" default:"1"`

	// Alan, if set, enables UDP peer discovery so multiple control-plane
	// instances coordinate the heartbeat reaper via leader election: only
	// the instance holding the distributed lock reaps and reschedules.
	Alan *alan.Config `cfg:"alan"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("ATGRAPH_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
