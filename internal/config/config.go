// Package config implements the on-disk configuration surface
// SPEC_FULL.md §6 names: a layered Config struct loaded from
// .wave/settings.json (with a .wave/settings.local.json overlay),
// grounded on _examples/haasonsaas-nexus/internal/config/config.go's
// Config (YAML-tagged struct-of-sections, Load/applyEnvOverrides/
// applyDefaults/validateConfig pipeline), narrowed from that teacher's
// ~20 server/gateway/channel sections down to this spec's LLM, tool
// execution, hook, observability, and host-server sections.
package config

import (
	"fmt"
	"time"

	"github.com/waveforge/wave/internal/engineerr"
	"github.com/waveforge/wave/internal/hookpipeline"
	"github.com/waveforge/wave/internal/mcp"
	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/scheduler"
)

// Config is the fully-resolved configuration for one Agent, assembled
// by Load from .wave/settings.json plus environment-variable fallbacks.
type Config struct {
	Workdir      string `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	CommandsRoot string `yaml:"commandsRoot,omitempty" json:"commandsRoot,omitempty"`

	LLM           LLMConfig             `yaml:"llm" json:"llm"`
	Tools         ToolsConfig           `yaml:"tools" json:"tools"`
	Hooks         []hookpipeline.Config `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Observability ObservabilityConfig   `yaml:"observability" json:"observability"`
	Server        ServerConfig          `yaml:"server" json:"server"`
	Scheduler     SchedulerConfig       `yaml:"scheduler,omitempty" json:"scheduler,omitempty"`
	MCP           mcp.ManagerConfig     `yaml:"mcp,omitempty" json:"mcp,omitempty"`
	Skills        SkillsConfig          `yaml:"skills,omitempty" json:"skills,omitempty"`
	Rules         RulesConfig           `yaml:"rules,omitempty" json:"rules,omitempty"`
	Plugins       []PluginConfig        `yaml:"plugins,omitempty" json:"plugins,omitempty"`
}

// PluginConfig names one loaded plugin per SPEC_FULL.md §6's Config
// object (`{type:"local", path}`) — "local" is the only supported type,
// since a plugin is always a directory already present on disk.
type PluginConfig struct {
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
	Path string `yaml:"path" json:"path"`
}

// RulesConfig configures internal/memoryrules' discovery of
// `.wave/rules/**/*.md` files.
type RulesConfig struct {
	// ExtraRoots are additional directories to discover rules from,
	// beyond "<Workdir>/.wave/rules".
	ExtraRoots []string `yaml:"extraRoots,omitempty" json:"extraRoots,omitempty"`
}

// SkillsConfig configures internal/skills' discovery of
// `.wave/skills/<name>/SKILL.md` templates.
type SkillsConfig struct {
	// ExtraRoots are additional directories to discover skills from,
	// beyond "<Workdir>/.wave/skills" (typically plugin-contributed
	// `skills/` directories).
	ExtraRoots []string `yaml:"extraRoots,omitempty" json:"extraRoots,omitempty"`

	// Disabled force-disables skills by name regardless of their own
	// eligibility metadata.
	Disabled []string `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// SchedulerConfig configures internal/scheduler's periodic maintenance
// prompts (a nightly /compact, housekeeping instructions, etc).
type SchedulerConfig struct {
	Jobs []scheduler.JobConfig `yaml:"jobs,omitempty" json:"jobs,omitempty"`
}

// LLMConfig selects and configures the engine.Completer the host builds
// from internal/llm/{anthropic,openai,bedrock}.
type LLMConfig struct {
	// Provider is one of "anthropic", "openai", "bedrock".
	Provider  string `yaml:"provider" json:"provider"`
	Model     string `yaml:"model" json:"model"`
	FastModel string `yaml:"fastModel,omitempty" json:"fastModel,omitempty"`

	// APIKey and BaseURL fall back to the AIGW_TOKEN/AIGW_URL
	// environment variables when empty, per SPEC_FULL.md §6.
	APIKey  string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	BaseURL string `yaml:"baseURL,omitempty" json:"baseURL,omitempty"`

	// MaxTokens falls back to the TOKEN_LIMIT environment variable when
	// zero.
	MaxTokens int `yaml:"maxTokens,omitempty" json:"maxTokens,omitempty"`

	MaxRetries int           `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
	RetryDelay time.Duration `yaml:"retryDelay,omitempty" json:"retryDelay,omitempty"`

	// Region, AccessKeyID, SecretAccessKey are read only when
	// Provider == "bedrock"; empty values fall back to the AWS SDK's
	// own default credential chain.
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	AccessKeyID     string `yaml:"accessKeyId,omitempty" json:"accessKeyId,omitempty"`
	SecretAccessKey string `yaml:"secretAccessKey,omitempty" json:"secretAccessKey,omitempty"`
}

// ToolsConfig configures the Tool Registry's concurrent Executor and
// the Permission Gate's starting posture.
type ToolsConfig struct {
	Concurrency           int    `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	PerToolTimeoutSeconds int    `yaml:"perToolTimeoutSeconds,omitempty" json:"perToolTimeoutSeconds,omitempty"`
	ApprovalMode          string `yaml:"approvalMode,omitempty" json:"approvalMode,omitempty"` // default|acceptEdits|bypassPermissions|plan
}

// ObservabilityConfig configures internal/obslog, internal/metrics, and
// internal/tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

type LoggingConfig struct {
	Level     string `yaml:"level,omitempty" json:"level,omitempty"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`
	AddSource bool   `yaml:"addSource,omitempty" json:"addSource,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

type TracingConfig struct {
	Enabled        bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	ServiceName    string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	Environment    string  `yaml:"environment,omitempty" json:"environment,omitempty"`
	Endpoint       string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SamplingRate   float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	EnableInsecure bool    `yaml:"enableInsecure,omitempty" json:"enableInsecure,omitempty"`
}

// ServerConfig configures cmd/waveagent's optional HTTP mode: bearer-JWT
// auth over net/http plus a websocket event stream.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty" json:"host,omitempty"`
	Port    int    `yaml:"port,omitempty" json:"port,omitempty"`

	// JWTSecret falls back to the JWT_SECRET environment variable when
	// empty, matching the teacher's AuthConfig convention.
	JWTSecret        string        `yaml:"jwtSecret,omitempty" json:"jwtSecret,omitempty"`
	TokenExpiry      time.Duration `yaml:"tokenExpiry,omitempty" json:"tokenExpiry,omitempty"`
	OAuthIssuerURL   string        `yaml:"oauthIssuerURL,omitempty" json:"oauthIssuerURL,omitempty"`
	OAuthClientID    string        `yaml:"oauthClientID,omitempty" json:"oauthClientID,omitempty"`
	OAuthRedirectURL string        `yaml:"oauthRedirectURL,omitempty" json:"oauthRedirectURL,omitempty"`
}

// Default returns a Config with every section's zero-value fields
// filled in, the same way the teacher's applyDefaults functions do it
// per-section.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.RetryDelay <= 0 {
		c.LLM.RetryDelay = time.Second
	}
	if c.Tools.Concurrency <= 0 {
		c.Tools.Concurrency = 4
	}
	if c.Tools.PerToolTimeoutSeconds <= 0 {
		c.Tools.PerToolTimeoutSeconds = 30
	}
	if c.Tools.ApprovalMode == "" {
		c.Tools.ApprovalMode = string(permission.ModeDefault)
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "json"
	}
	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = "wave"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Server.TokenExpiry <= 0 {
		c.Server.TokenExpiry = time.Hour
	}
}

var validApprovalModes = map[string]struct{}{
	string(permission.ModeDefault):          {},
	string(permission.ModeAcceptEdits):       {},
	string(permission.ModeBypassPermissions): {},
	string(permission.ModePlan):              {},
}

var validProviders = map[string]struct{}{
	"anthropic": {}, "openai": {}, "bedrock": {},
}

// Validate checks the fully-resolved Config (after defaults and env
// overrides have been applied) against SPEC_FULL.md §6's required-field
// and enum constraints, returning *engineerr.ConfigError on the first
// violation, matching the teacher's named-field validateConfig style.
func (c Config) Validate() error {
	if _, ok := validProviders[c.LLM.Provider]; !ok {
		return &engineerr.ConfigError{Key: "llm.provider", Reason: fmt.Sprintf("must be one of anthropic|openai|bedrock, got %q", c.LLM.Provider)}
	}
	if c.LLM.Model == "" {
		return &engineerr.ConfigError{Key: "llm.model", EnvVar: "AIGW_MODEL", Reason: "required"}
	}
	if c.LLM.Provider != "bedrock" && c.LLM.APIKey == "" {
		return &engineerr.ConfigError{Key: "llm.apiKey", EnvVar: "AIGW_TOKEN", Reason: "required"}
	}
	if c.LLM.MaxTokens < 0 {
		return &engineerr.ConfigError{Key: "llm.maxTokens", EnvVar: "TOKEN_LIMIT", Reason: "must not be negative"}
	}
	if c.Tools.Concurrency < 1 {
		return &engineerr.ConfigError{Key: "tools.concurrency", Reason: "must be at least 1"}
	}
	if _, ok := validApprovalModes[c.Tools.ApprovalMode]; !ok {
		return &engineerr.ConfigError{Key: "tools.approvalMode", Reason: fmt.Sprintf("must be one of default|acceptEdits|bypassPermissions|plan, got %q", c.Tools.ApprovalMode)}
	}
	if c.Observability.Tracing.SamplingRate < 0 || c.Observability.Tracing.SamplingRate > 1 {
		return &engineerr.ConfigError{Key: "observability.tracing.samplingRate", Reason: "must be between 0 and 1"}
	}
	if c.Server.Enabled && c.Server.JWTSecret != "" && len(c.Server.JWTSecret) < 32 {
		return &engineerr.ConfigError{Key: "server.jwtSecret", EnvVar: "JWT_SECRET", Reason: "must be at least 32 characters"}
	}
	return nil
}
