package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/variant-matrix/internal/logging"
	"github.com/eugenenazirov/variant-matrix/internal/variant"
)

const (
	defaultPort                = "8080"
	defaultRateLimitRPS        = 25.0
	defaultRateLimitBurst      = 50
	defaultSecretsFile         = "keystore.local.properties"
	defaultSecretsFallbackFile = "keystore.properties"
	defaultLocalPropertiesFile = "local.properties"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > config file > Environment variables > Defaults
type Config struct {
	Root                string
	SecretsFile         string
	SecretsFallbackFile string
	LocalPropertiesFile string
	EnvFile             string
	Carriers            []string
	Environments        []variant.Environment
	Properties          map[string]string
	Parallelism         int

	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	Watch                bool
	WatchDebounce        time.Duration

	LogLevel  string
	LogFormat string
}

// fileConfig represents the YAML/TOML configuration file structure.
type fileConfig struct {
	Root                 string            `yaml:"root" toml:"root"`
	SecretsFile          string            `yaml:"secrets_file" toml:"secrets_file"`
	SecretsFallbackFile  string            `yaml:"secrets_fallback_file" toml:"secrets_fallback_file"`
	LocalPropertiesFile  string            `yaml:"local_properties_file" toml:"local_properties_file"`
	EnvFile              string            `yaml:"env_file" toml:"env_file"`
	Carriers             []string          `yaml:"carriers" toml:"carriers"`
	Environments         []string          `yaml:"environments" toml:"environments"`
	Properties           map[string]string `yaml:"properties" toml:"properties"`
	Parallelism          int               `yaml:"parallelism" toml:"parallelism"`
	Server               fileServer        `yaml:"server" toml:"server"`
	Log                  fileLog           `yaml:"log" toml:"log"`
	EnableRequestLogging *bool             `yaml:"enable_request_logging" toml:"enable_request_logging"`
}

type fileServer struct {
	Port                string        `yaml:"port" toml:"port"`
	ShutdownGracePeriod string        `yaml:"shutdown_grace_period" toml:"shutdown_grace_period"`
	ReadHeaderTimeout   string        `yaml:"read_header_timeout" toml:"read_header_timeout"`
	WriteTimeout        string        `yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout         string        `yaml:"idle_timeout" toml:"idle_timeout"`
	Watch               bool          `yaml:"watch" toml:"watch"`
	RateLimit           fileRateLimit `yaml:"rate_limit" toml:"rate_limit"`
}

type fileRateLimit struct {
	RPS   *float64 `yaml:"rps" toml:"rps"`
	Burst *int     `yaml:"burst" toml:"burst"`
}

type fileLog struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// CLIOverrides holds command-line flag overrides. Nil or empty values leave the
// lower-precedence setting in place.
type CLIOverrides struct {
	ConfigFile     string
	Root           *string
	EnvFile        *string
	Carriers       *string
	Environments   *string
	Properties     map[string]string
	Parallelism    *int
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	Watch          *bool
	LogLevel       *string
	LogFormat      *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > config file > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Apply environment variables (lowest explicit source)
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	// Load from config file if specified (overrides environment)
	if overrides != nil && overrides.ConfigFile != "" {
		fileCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
		if err := applyFileConfig(&cfg, fileCfg); err != nil {
			return Config{}, err
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Root:                 ".",
		SecretsFile:          defaultSecretsFile,
		SecretsFallbackFile:  defaultSecretsFallbackFile,
		LocalPropertiesFile:  defaultLocalPropertiesFile,
		Carriers:             append([]string(nil), variant.DefaultCarriers...),
		Environments:         variant.Environments(),
		Properties:           map[string]string{},
		Parallelism:          1,
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		WatchDebounce:        250 * time.Millisecond,
		LogLevel:             "info",
		LogFormat:            logging.FormatJSON,
	}
}

// loadFromFile loads configuration from a YAML or TOML file, chosen by extension.
func loadFromFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &fileCfg); err != nil {
			return nil, fmt.Errorf("parse TOML: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfig, filepath.Ext(path))
	}

	return &fileCfg, nil
}

// applyFileConfig applies file configuration to the Config struct.
func applyFileConfig(cfg *Config, fileCfg *fileConfig) error {
	setString(&cfg.Root, fileCfg.Root)
	setString(&cfg.SecretsFile, fileCfg.SecretsFile)
	setString(&cfg.SecretsFallbackFile, fileCfg.SecretsFallbackFile)
	setString(&cfg.LocalPropertiesFile, fileCfg.LocalPropertiesFile)
	setString(&cfg.EnvFile, fileCfg.EnvFile)

	if len(fileCfg.Carriers) > 0 {
		cfg.Carriers = make([]string, 0, len(fileCfg.Carriers))
		for _, c := range fileCfg.Carriers {
			cfg.Carriers = append(cfg.Carriers, strings.TrimSpace(c))
		}
	}
	if len(fileCfg.Environments) > 0 {
		cfg.Environments = parseEnvironments(fileCfg.Environments)
	}
	for k, v := range fileCfg.Properties {
		cfg.Properties[k] = v
	}
	if fileCfg.Parallelism != 0 {
		cfg.Parallelism = fileCfg.Parallelism
	}

	srv := fileCfg.Server
	setString(&cfg.Port, srv.Port)
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"shutdown_grace_period", srv.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", srv.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", srv.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", srv.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.name, err)
		}
		*d.dst = parsed
	}
	if srv.Watch {
		cfg.Watch = true
	}
	if srv.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *srv.RateLimit.RPS
	}
	if srv.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *srv.RateLimit.Burst
	}
	if fileCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *fileCfg.EnableRequestLogging
	}

	setString(&cfg.LogLevel, fileCfg.Log.Level)
	setString(&cfg.LogFormat, fileCfg.Log.Format)
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	setString(&cfg.Root, env("VARIANTS_ROOT"))
	setString(&cfg.EnvFile, env("VARIANTS_ENV_FILE"))
	setString(&cfg.Port, env("PORT"))
	setString(&cfg.LogLevel, env("LOG_LEVEL"))
	setString(&cfg.LogFormat, env("LOG_FORMAT"))

	if raw := env("VARIANTS_CARRIERS"); raw != "" {
		cfg.Carriers = parseList(raw)
	}
	if raw := env("VARIANTS_ENVIRONMENTS"); raw != "" {
		cfg.Environments = parseEnvironments(parseList(raw))
	}

	if raw := env("VARIANTS_PARALLELISM"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: VARIANTS_PARALLELISM: invalid integer %q", ErrInvalidConfig, raw)
		}
		cfg.Parallelism = value
	}

	if rps := env("RATE_LIMIT_RPS"); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := env("RATE_LIMIT_BURST"); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Root != nil {
		setString(&cfg.Root, *overrides.Root)
	}
	if overrides.EnvFile != nil {
		setString(&cfg.EnvFile, *overrides.EnvFile)
	}
	if overrides.Carriers != nil && strings.TrimSpace(*overrides.Carriers) != "" {
		cfg.Carriers = parseList(*overrides.Carriers)
	}
	if overrides.Environments != nil && strings.TrimSpace(*overrides.Environments) != "" {
		cfg.Environments = parseEnvironments(parseList(*overrides.Environments))
	}
	for k, v := range overrides.Properties {
		cfg.Properties[k] = v
	}
	if overrides.Parallelism != nil && *overrides.Parallelism != 0 {
		cfg.Parallelism = *overrides.Parallelism
	}
	if overrides.Port != nil {
		setString(&cfg.Port, *overrides.Port)
	}
	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}
	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
	if overrides.Watch != nil && *overrides.Watch {
		cfg.Watch = true
	}
	if overrides.LogLevel != nil {
		setString(&cfg.LogLevel, *overrides.LogLevel)
	}
	if overrides.LogFormat != nil {
		setString(&cfg.LogFormat, *overrides.LogFormat)
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	switch {
	case cfg.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be >= 1, got %d", ErrInvalidConfig, cfg.Parallelism)
	case cfg.RateLimitRPS < 0:
		return fmt.Errorf("%w: RATE_LIMIT_RPS must be >= 0", ErrInvalidConfig)
	case cfg.RateLimitBurst < 0:
		return fmt.Errorf("%w: RATE_LIMIT_BURST must be >= 0", ErrInvalidConfig)
	case len(cfg.Environments) == 0:
		return fmt.Errorf("%w: environments cannot be empty", ErrInvalidConfig)
	}
	if err := logging.Validate(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// parseList splits a comma-separated list, trimming blanks. Empty entries are
// kept when they sit between other entries so the generator can reject them.
func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.TrimSpace(part))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func parseEnvironments(names []string) []variant.Environment {
	envs := make([]variant.Environment, 0, len(names))
	for _, name := range names {
		envs = append(envs, variant.ParseEnvironment(name))
	}
	return envs
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
