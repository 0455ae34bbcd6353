// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	GraphQL       GraphQLConfig       `yaml:"graphql"`
	Meta          MetaConfig          `yaml:"meta"`
	Capability    CapabilityConfig    `yaml:"capability"`
	ViewState     ViewStateConfig     `yaml:"view_state"`
	Forms         FormsConfig         `yaml:"forms"`
	Relationship  RelationshipConfig  `yaml:"relationship"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT and identity provider settings.
type IdentityConfig struct {
	// Disabled skips JWT verification and uses DevSubject as the caller.
	Disabled     bool              `yaml:"disabled"`
	DevSubject   string            `yaml:"dev_subject"`
	DevRoles     []string          `yaml:"dev_roles"`
	Issuer       string            `yaml:"issuer"`
	Audience     string            `yaml:"audience"`
	JWKSURL      string            `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration     `yaml:"jwks_cache_ttl"`
	Algorithms   []string          `yaml:"algorithms"`
	ClaimPaths   map[string]string `yaml:"claim_paths"`
}

// GraphQLConfig describes the GraphQL API the admin talks to.
type GraphQLConfig struct {
	Endpoint       string               `yaml:"endpoint"`
	Timeout        time.Duration        `yaml:"timeout"`
	Headers        map[string]string    `yaml:"headers"`
	ForwardAuth    bool                 `yaml:"forward_auth"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes circuit breaker settings.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	ErrorRateWindow    time.Duration `yaml:"error_rate_window"`
}

// RetryConfig describes retry settings for queries. Mutations are never
// retried.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// MetaConfig describes where admin metadata comes from and how field views
// are resolved.
type MetaConfig struct {
	// Source is "graphql" (query the API) or "file" (load a snapshot).
	Source string `yaml:"source"`
	File   string `yaml:"file"`
	// Views is the ordered view module registry; viewsIndex values returned
	// by the API index into it.
	Views []string `yaml:"views"`
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	// Evaluator is "static" (role policies) or "allow_all".
	Evaluator        string `yaml:"evaluator"`
	StaticPolicyFile string `yaml:"static_policy_file"`
	// Roles grants capability strings to roles in addition to the policy
	// file.
	Roles map[string][]string `yaml:"roles"`
	Cache CacheConfig         `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// ViewStateConfig describes where remembered list views are persisted.
type ViewStateConfig struct {
	Enabled bool          `yaml:"enabled"`
	Driver  string        `yaml:"driver"`
	AddrEnv string        `yaml:"addr_env"`
	DB      int           `yaml:"db"`
	DSNEnv  string        `yaml:"dsn_env"`
	TTL     time.Duration `yaml:"ttl"`
	MaxConn int           `yaml:"max_conns"`
}

// FormsConfig describes open form session limits.
type FormsConfig struct {
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

// RelationshipConfig describes relationship option loading.
type RelationshipConfig struct {
	Cache CacheConfig `yaml:"cache"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultViews is the view module order of the stock GraphQL API build.
var DefaultViews = []string{
	"id", "text", "checkbox", "integer", "decimal", "timestamp",
	"select", "multiselect", "relationship", "virtual",
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
			ClaimPaths: map[string]string{
				"subject_id": "sub",
				"tenant_id":  "tenant_id",
				"email":      "email",
				"roles":      "roles",
			},
		},
		GraphQL: GraphQLConfig{
			Endpoint:    "http://localhost:3000/api/graphql",
			Timeout:     10 * time.Second,
			ForwardAuth: true,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       2,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        2 * time.Second,
			},
		},
		Meta: MetaConfig{
			Source: "graphql",
			Views:  append([]string(nil), DefaultViews...),
		},
		Capability: CapabilityConfig{
			Evaluator: "static",
			Cache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 10000,
			},
		},
		ViewState: ViewStateConfig{
			Enabled: true,
			Driver:  "memory",
			TTL:     30 * 24 * time.Hour,
			MaxConn: 10,
		},
		Forms: FormsConfig{
			SessionTTL:  30 * time.Minute,
			MaxSessions: 10000,
		},
		Relationship: RelationshipConfig{
			Cache: CacheConfig{
				TTL:        1 * time.Minute,
				MaxEntries: 1000,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Disabled {
		if c.Identity.DevSubject == "" {
			errs = append(errs, "identity.dev_subject is required when identity is disabled")
		}
	} else {
		if c.Identity.Issuer == "" {
			errs = append(errs, "identity.issuer is required")
		}
		if c.Identity.JWKSURL == "" {
			errs = append(errs, "identity.jwks_url is required")
		}
		if c.Identity.Audience == "" {
			errs = append(errs, "identity.audience is required")
		}
	}
	switch c.Meta.Source {
	case "graphql":
		if c.GraphQL.Endpoint == "" {
			errs = append(errs, "graphql.endpoint is required")
		}
	case "file":
		if c.Meta.File == "" {
			errs = append(errs, "meta.file is required when meta.source is file")
		}
	default:
		errs = append(errs, fmt.Sprintf("meta.source %q is not one of graphql, file", c.Meta.Source))
	}
	if len(c.Meta.Views) == 0 {
		errs = append(errs, "meta.views must list at least one view module")
	}
	switch c.Capability.Evaluator {
	case "static", "allow_all":
	default:
		errs = append(errs, fmt.Sprintf("capability.evaluator %q is not one of static, allow_all", c.Capability.Evaluator))
	}
	if c.ViewState.Enabled {
		switch c.ViewState.Driver {
		case "memory", "redis", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("view_state.driver %q is not one of memory, redis, postgres", c.ViewState.Driver))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads ADMINMETA_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ADMINMETA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ADMINMETA_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("ADMINMETA_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("ADMINMETA_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("ADMINMETA_GRAPHQL_ENDPOINT"); v != "" {
		cfg.GraphQL.Endpoint = v
	}
	if v := os.Getenv("ADMINMETA_META_SOURCE"); v != "" {
		cfg.Meta.Source = v
	}
	if v := os.Getenv("ADMINMETA_VIEW_STATE_DRIVER"); v != "" {
		cfg.ViewState.Driver = v
	}
	if v := os.Getenv("ADMINMETA_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
