package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"claimsaga/internal/valuation"
)

// Service names accepted by Service.Services.
const (
	ServiceAll          = "all"
	ServiceOrchestrator = "orchestrator"
	ServiceVerification = "verification"
	ServiceValuation    = "valuation"
	ServicePayment      = "payment"
	ServiceAudit        = "audit"
	ServiceMonitor      = "monitor"
)

var knownServices = []string{
	ServiceOrchestrator,
	ServiceVerification,
	ServiceValuation,
	ServicePayment,
	ServiceAudit,
	ServiceMonitor,
}

// Config models claimsaga.yml. Environment variables override file values.
type Config struct {
	Service       ServiceConfig      `yaml:"service"`
	Collaborators CollaboratorConfig `yaml:"collaborators"`
	Valuation     valuation.Config   `yaml:"valuation"`
	History       HistoryConfig      `yaml:"history"`
	Intake        IntakeConfig       `yaml:"intake"`
	SideChannel   SideChannelConfig  `yaml:"side_channel"`
	Telemetry     TelemetryConfig    `yaml:"telemetry"`
}

type ServiceConfig struct {
	Name     string   `yaml:"name" env:"SERVICE_NAME"`
	Addr     string   `yaml:"addr" env:"CLAIMSAGA_ADDR"`
	BasePath string   `yaml:"base_path" env:"CLAIMSAGA_BASE_PATH"`
	Services []string `yaml:"services" env:"CLAIMSAGA_SERVICES" envSeparator:","`
}

// CollaboratorConfig points the orchestrator at remote services. An empty URL
// selects the in-process implementation.
type CollaboratorConfig struct {
	VerificationURL string        `yaml:"verification_url" env:"ORCH_VERIFICATION_URL"`
	ValuationURL    string        `yaml:"valuation_url" env:"ORCH_VALUATION_URL"`
	PaymentURL      string        `yaml:"payment_url" env:"ORCH_PAYMENT_URL"`
	AuditURL        string        `yaml:"audit_url" env:"ORCH_AUDIT_URL"`
	VINURL          string        `yaml:"vin_url" env:"ORCH_VIN_URL"`
	Timeout         time.Duration `yaml:"timeout" env:"ORCH_TIMEOUT"`
	AuditTimeout    time.Duration `yaml:"audit_timeout" env:"ORCH_AUDIT_TIMEOUT"`
	// StepTimeout bounds a whole saga step, in-process or remote. Zero
	// leaves remote calls to Timeout and in-process ones unbounded.
	StepTimeout time.Duration `yaml:"step_timeout" env:"ORCH_STEP_TIMEOUT"`
}

type HistoryConfig struct {
	Delay    time.Duration `yaml:"delay" env:"HISTORY_DELAY"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"HISTORY_CACHE_TTL"`
}

// IntakeConfig limits claim filing. A zero rate disables the limiter.
type IntakeConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" env:"INTAKE_RATE_PER_SECOND"`
	Burst         int     `yaml:"burst" env:"INTAKE_BURST"`
}

type SideChannelConfig struct {
	QueueSize int           `yaml:"queue_size" env:"SIDE_CHANNEL_QUEUE_SIZE"`
	Timeout   time.Duration `yaml:"timeout" env:"SIDE_CHANNEL_TIMEOUT"`
}

// TelemetryConfig enables OTLP trace export when an endpoint is set.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" env:"CLAIMSAGA_OTEL_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"CLAIMSAGA_OTEL_ENDPOINT"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "claims-orchestrator",
			Addr:     "127.0.0.1:8080",
			Services: []string{ServiceAll},
		},
		Collaborators: CollaboratorConfig{
			Timeout:      20 * time.Second,
			AuditTimeout: 10 * time.Second,
			StepTimeout:  30 * time.Second,
		},
		Valuation: valuation.DefaultConfig(),
		History: HistoryConfig{
			Delay:    100 * time.Millisecond,
			CacheTTL: 5 * time.Minute,
		},
		Intake: IntakeConfig{RatePerSecond: 50, Burst: 100},
		SideChannel: SideChannelConfig{
			QueueSize: 256,
			Timeout:   10 * time.Second,
		},
		Telemetry: TelemetryConfig{Enabled: true},
	}
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.Name) == "" {
		return fmt.Errorf("config.service.name is required")
	}
	if len(c.Service.Services) == 0 {
		return fmt.Errorf("config.service.services is required")
	}
	for _, s := range c.Service.Services {
		if s == ServiceAll {
			continue
		}
		if !isKnownService(s) {
			return fmt.Errorf("config.service.services: unknown service %q (known: all, %s)", s, strings.Join(knownServices, ", "))
		}
	}
	if c.Service.BasePath != "" && !strings.HasPrefix(c.Service.BasePath, "/") {
		return fmt.Errorf("config.service.base_path must start with /")
	}
	urls := map[string]string{
		"verification_url": c.Collaborators.VerificationURL,
		"valuation_url":    c.Collaborators.ValuationURL,
		"payment_url":      c.Collaborators.PaymentURL,
		"audit_url":        c.Collaborators.AuditURL,
		"vin_url":          c.Collaborators.VINURL,
	}
	for field, raw := range urls {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.collaborators.%s must be an absolute http(s) url, got %q", field, raw)
		}
	}
	if c.Collaborators.Timeout <= 0 || c.Collaborators.AuditTimeout <= 0 {
		return fmt.Errorf("config.collaborators timeouts must be positive")
	}
	if c.Collaborators.StepTimeout < 0 {
		return fmt.Errorf("config.collaborators.step_timeout must not be negative")
	}
	v := c.Valuation
	if v.BaseCap <= 0 || v.BuyupCap <= 0 || v.AutoApproveCap <= 0 {
		return fmt.Errorf("config.valuation caps must be positive")
	}
	if v.PercentK <= 0 || v.PercentK > 1 {
		return fmt.Errorf("config.valuation.percent_k must be in (0, 1]")
	}
	if c.History.Delay < 0 || c.History.CacheTTL < 0 {
		return fmt.Errorf("config.history durations must not be negative")
	}
	if c.Intake.RatePerSecond < 0 || c.Intake.Burst < 0 {
		return fmt.Errorf("config.intake limits must not be negative")
	}
	if c.Intake.RatePerSecond > 0 && c.Intake.Burst == 0 {
		return fmt.Errorf("config.intake.burst must be positive when a rate is set")
	}
	if c.SideChannel.QueueSize < 0 || c.SideChannel.Timeout < 0 {
		return fmt.Errorf("config.side_channel values must not be negative")
	}
	return nil
}

// Enabled reports whether the named service should be mounted.
func (c *Config) Enabled(service string) bool {
	for _, s := range c.Service.Services {
		if s == ServiceAll || s == service {
			return true
		}
	}
	return false
}

func isKnownService(s string) bool {
	for _, k := range knownServices {
		if k == s {
			return true
		}
	}
	return false
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromYAML parses config from raw YAML bytes on top of the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Load builds the effective config: defaults, then the optional file, then
// the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := FromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// YAML renders cfg in the file format.
func (c *Config) YAML() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
