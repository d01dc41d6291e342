// Package config loads gateway settings from the environment, with an
// optional YAML file underneath. Environment variables always win, so a
// deployment can ship a base file and override per-instance.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RedactionStrategy names how detected entities are rewritten.
type RedactionStrategy string

const (
	RedactMask     RedactionStrategy = "mask"
	RedactTokenize RedactionStrategy = "tokenize"
	RedactHash     RedactionStrategy = "hash"
	RedactEncrypt  RedactionStrategy = "encrypt"
)

// Config holds global settings for the gateway.
// All settings can be configured via environment variables, a YAML file
// named by AEGIS_CONFIG, or programmatically.
type Config struct {
	// === Server ===
	ListenAddr string `yaml:"listen_addr"` // HTTP bind address (default ":8080")
	LogLevel   string `yaml:"log_level"`   // zap level: debug, info, warn, error
	APIKey     string `yaml:"-"`           // Bearer token for the evaluate endpoint (env only)

	// === Detection thresholds (0.0 - 1.0) ===
	BlockThreshold      float64 `yaml:"block_threshold"`       // Stage and aggregate veto point (default 0.9)
	MinEntityConfidence float64 `yaml:"min_entity_confidence"` // Entity floor after merging (default 0.8)
	PIIRiskWeight       float64 `yaml:"pii_risk_weight"`       // PII contribution to input score (default 0.6)
	PIIPolicy           string  `yaml:"pii_policy"`            // deny or redact (default deny)

	// === Redaction ===
	Strategy     RedactionStrategy `yaml:"redaction_strategy"` // mask, tokenize, hash, encrypt
	RedactionKey string            `yaml:"-"`                  // 32-byte key for encrypt (env only)

	// === Semantic scoring ===
	EnableSemantics bool   `yaml:"enable_semantics"` // Corpus similarity on the input guard
	SeedDir         string `yaml:"seed_dir"`         // Extra attack-seed YAML files

	// === State monitor ===
	MonitorWindow     int     `yaml:"monitor_window"`     // Invocation history size (default 50)
	ExactLoopN        int     `yaml:"exact_loop_n"`       // Identical calls before veto (default 3)
	SemanticThreshold float64 `yaml:"semantic_threshold"` // Near-duplicate Jaccard floor (default 0.8)
	TokenBudget       int     `yaml:"token_budget"`       // Per-request token estimate cap (default 100000)

	// === Shadow-agent escalation ===
	ShadowEndpoint string        `yaml:"shadow_endpoint"` // Empty disables escalation
	ShadowAPIKey   string        `yaml:"-"`               // env only
	ShadowTrigger  float64       `yaml:"shadow_trigger"`  // Escalate at or above (default 0.5)
	ShadowTimeout  time.Duration `yaml:"shadow_timeout"`  // Per-call budget (default 5s)

	// === Resilience ===
	BreakerFailures int           `yaml:"breaker_failures"` // Failures before opening (default 5)
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"` // Open duration (default 30s)
	RateBucket      int           `yaml:"rate_bucket"`      // Token bucket capacity (default 10)
	RateRefill      float64       `yaml:"rate_refill"`      // Tokens per second (default 2)
	RateWindowMax   int           `yaml:"rate_window_max"`  // Calls per window (default 60)
	RateWindow      time.Duration `yaml:"rate_window"`      // Window length (default 1m)

	// === Shared state ===
	RedisAddr string `yaml:"redis_addr"` // Empty keeps rate windows in-process

	// === Audit ===
	AuditSigningKey string `yaml:"-"`              // HMAC key; unsigned records without it (env only)
	PostgresDSN     string `yaml:"postgres_dsn"`   // Durable audit sink
	ClickHouseDSN   string `yaml:"clickhouse_dsn"` // Analytics audit sink
}

// baseline returns the built-in defaults before file or env overlays.
func baseline() *Config {
	return &Config{
		ListenAddr:          ":8080",
		LogLevel:            "info",
		BlockThreshold:      0.9,
		MinEntityConfidence: 0.8,
		PIIRiskWeight:       0.6,
		PIIPolicy:           "deny",
		Strategy:            RedactTokenize,
		EnableSemantics:     true,
		MonitorWindow:       50,
		ExactLoopN:          3,
		SemanticThreshold:   0.8,
		TokenBudget:         100000,
		ShadowTrigger:       0.5,
		ShadowTimeout:       5 * time.Second,
		BreakerFailures:     5,
		BreakerCooldown:     30 * time.Second,
		RateBucket:          10,
		RateRefill:          2,
		RateWindowMax:       60,
		RateWindow:          time.Minute,
	}
}

// Load builds the config: defaults, then the YAML file named by
// AEGIS_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	if path := os.Getenv("AEGIS_CONFIG"); path != "" {
		return LoadFile(path)
	}
	cfg := baseline()
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile overlays the YAML file at path, then the environment.
func LoadFile(path string) (*Config, error) {
	cfg := baseline()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// NewDefaultConfig creates a Config from defaults and environment only.
func NewDefaultConfig() *Config {
	cfg := baseline()
	cfg.applyEnv()
	return cfg
}

// NewHighSecurityConfig blocks more aggressively and encrypts redactions
// so originals stay recoverable for incident review.
func NewHighSecurityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.BlockThreshold = 0.75
	cfg.PIIRiskWeight = 0.8
	cfg.Strategy = RedactEncrypt
	cfg.ExactLoopN = 2
	return cfg
}

// NewHighUsabilityConfig minimizes false positives.
func NewHighUsabilityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.BlockThreshold = 0.95
	cfg.MinEntityConfidence = 0.85
	cfg.PIIRiskWeight = 0.5
	cfg.PIIPolicy = "redact"
	return cfg
}

func (c *Config) applyEnv() {
	c.ListenAddr = GetEnv("AEGIS_LISTEN_ADDR", c.ListenAddr)
	c.LogLevel = GetEnv("AEGIS_LOG_LEVEL", c.LogLevel)
	c.APIKey = GetEnv("AEGIS_API_KEY", c.APIKey)

	c.BlockThreshold = GetEnvFloat("AEGIS_BLOCK_THRESHOLD", c.BlockThreshold)
	c.MinEntityConfidence = GetEnvFloat("AEGIS_MIN_ENTITY_CONFIDENCE", c.MinEntityConfidence)
	c.PIIRiskWeight = GetEnvFloat("AEGIS_PII_RISK_WEIGHT", c.PIIRiskWeight)
	c.PIIPolicy = GetEnv("AEGIS_PII_POLICY", c.PIIPolicy)

	c.Strategy = RedactionStrategy(GetEnv("AEGIS_REDACTION_STRATEGY", string(c.Strategy)))
	c.RedactionKey = GetEnv("AEGIS_REDACTION_KEY", c.RedactionKey)

	c.EnableSemantics = GetEnvBool("AEGIS_ENABLE_SEMANTICS", c.EnableSemantics)
	c.SeedDir = GetEnv("AEGIS_SEED_DIR", c.SeedDir)

	c.MonitorWindow = GetEnvInt("AEGIS_MONITOR_WINDOW", c.MonitorWindow)
	c.ExactLoopN = GetEnvInt("AEGIS_EXACT_LOOP_N", c.ExactLoopN)
	c.SemanticThreshold = GetEnvFloat("AEGIS_SEMANTIC_THRESHOLD", c.SemanticThreshold)
	c.TokenBudget = GetEnvInt("AEGIS_TOKEN_BUDGET", c.TokenBudget)

	c.ShadowEndpoint = GetEnv("AEGIS_SHADOW_ENDPOINT", c.ShadowEndpoint)
	c.ShadowAPIKey = GetEnv("AEGIS_SHADOW_API_KEY", c.ShadowAPIKey)
	c.ShadowTrigger = GetEnvFloat("AEGIS_SHADOW_TRIGGER", c.ShadowTrigger)
	c.ShadowTimeout = GetEnvDuration("AEGIS_SHADOW_TIMEOUT", c.ShadowTimeout)

	c.BreakerFailures = GetEnvInt("AEGIS_BREAKER_FAILURES", c.BreakerFailures)
	c.BreakerCooldown = GetEnvDuration("AEGIS_BREAKER_COOLDOWN", c.BreakerCooldown)
	c.RateBucket = GetEnvInt("AEGIS_RATE_BUCKET", c.RateBucket)
	c.RateRefill = GetEnvFloat("AEGIS_RATE_REFILL", c.RateRefill)
	c.RateWindowMax = GetEnvInt("AEGIS_RATE_WINDOW_MAX", c.RateWindowMax)
	c.RateWindow = GetEnvDuration("AEGIS_RATE_WINDOW", c.RateWindow)

	c.RedisAddr = GetEnv("AEGIS_REDIS_ADDR", c.RedisAddr)

	c.AuditSigningKey = GetEnv("AEGIS_AUDIT_SIGNING_KEY", c.AuditSigningKey)
	c.PostgresDSN = GetEnv("AEGIS_POSTGRES_DSN", c.PostgresDSN)
	c.ClickHouseDSN = GetEnv("AEGIS_CLICKHOUSE_DSN", c.ClickHouseDSN)
}

// IsProduction reports whether AEGIS_ENV names a production deployment.
func IsProduction() bool {
	env := strings.ToLower(os.Getenv("AEGIS_ENV"))
	return env == "production" || env == "prod"
}

// RequiredSecret defines a required environment variable for startup validation.
type RequiredSecret struct {
	Name        string // Environment variable name
	Description string // Human-readable description
	Production  bool   // Required in production only (false = required always)
}

// CriticalSecrets returns the secrets the gateway needs to operate.
func CriticalSecrets() []RequiredSecret {
	return []RequiredSecret{
		{Name: "AEGIS_AUDIT_SIGNING_KEY", Description: "HMAC key for audit signatures (32+ bytes)", Production: true},
		{Name: "AEGIS_API_KEY", Description: "API key for gateway authentication", Production: true},
	}
}

// Validate checks that required configuration is present. Production
// deployments fail hard on missing secrets; development logs warnings.
func (c *Config) Validate() error {
	production := IsProduction()

	var missing, warnings []string
	for _, secret := range CriticalSecrets() {
		if os.Getenv(secret.Name) != "" {
			continue
		}
		desc := secret.Name + " (" + secret.Description + ")"
		if secret.Production && !production {
			warnings = append(warnings, desc)
		} else {
			missing = append(missing, desc)
		}
	}

	if production && c.AuditSigningKey != "" && len(c.AuditSigningKey) < 32 {
		missing = append(missing, "AEGIS_AUDIT_SIGNING_KEY (must be at least 32 bytes)")
	}
	switch c.Strategy {
	case RedactMask, RedactTokenize, RedactHash:
	case RedactEncrypt:
		if len(c.RedactionKey) != 32 {
			missing = append(missing, "AEGIS_REDACTION_KEY (encrypt strategy needs a 32-byte key)")
		}
	default:
		return fmt.Errorf("config: unknown redaction strategy %q", c.Strategy)
	}
	if c.BlockThreshold <= 0 || c.BlockThreshold > 1 {
		return fmt.Errorf("config: block threshold %.2f out of (0,1]", c.BlockThreshold)
	}
	if c.PIIPolicy != "deny" && c.PIIPolicy != "redact" {
		return fmt.Errorf("config: unknown pii policy %q", c.PIIPolicy)
	}

	for _, w := range warnings {
		log.Printf("[STARTUP] Warning: missing optional secret: %s", w)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits on failure.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: configuration validation failed: %v", err)
	}
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvDuration returns the duration value of an environment variable or a default value.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
