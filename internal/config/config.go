package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "MIRADOR_DIAGNOSE_"

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config captures the settings required to boot the diagnosis service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	LLM     LLMConfig     `yaml:"llm"`
	Store   StoreConfig   `yaml:"store"`
	Rules   RulesConfig   `yaml:"rules"`
	Engine  EngineConfig  `yaml:"engine"`
}

// ServerConfig controls listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LLMConfig controls the optional language-model hypothesis path.
type LLMConfig struct {
	Enabled     bool          `yaml:"enabled"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreConfig selects where investigation scratchpads live. MaxInvestigations
// caps the memory driver; older investigations are evicted past it.
type StoreConfig struct {
	Driver            string `yaml:"driver"`
	DSN               string `yaml:"dsn"`
	MaxConns          int32  `yaml:"maxConns"`
	MaxInvestigations int    `yaml:"maxInvestigations"`
}

// RulesConfig controls rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig tunes diagnosis output.
type EngineConfig struct {
	EvidenceLimit int `yaml:"evidenceLimit"`
}

// Load initialises Config from a YAML file, an optional .env file and
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(os.Getenv(envPrefix + "ENV_FILE")); err != nil {
		return nil, err
	}
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv populates unset environment variables from a dotenv file. A missing
// default .env is not an error; a missing explicit file is.
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		LLM: LLMConfig{
			Enabled:     false,
			Model:       "gemini-2.0-flash",
			Temperature: 0.3,
			MaxTokens:   1000,
			Timeout:     30 * time.Second,
		},
		Store:  StoreConfig{Driver: StoreMemory, MaxConns: 10, MaxInvestigations: 1024},
		Rules:  RulesConfig{Path: "configs/rules/default.yaml"},
		Engine: EngineConfig{EvidenceLimit: 5},
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, postgres", c.Store.Driver))
	}
	if c.Store.Driver == StoreMemory && c.Store.MaxInvestigations <= 0 {
		errs = append(errs, fmt.Errorf("store.maxInvestigations must be positive, got %d", c.Store.MaxInvestigations))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f must be within [0,2]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm.maxTokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.apiKey is required when llm.enabled is true"))
	}
	return errors.Join(errs...)
}

func applyEnvOverrides(cfg *Config) {
	if v := env("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := env("HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := env("METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := env("GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := env("LLM_ENABLED"); v != "" {
		cfg.LLM.Enabled = truthy(v)
	}
	if v := env("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := env("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := env("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = f
		}
	}
	if v := env("LLM_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxTokens = n
		}
	}
	if v := env("LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := env("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := env("STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := env("STORE_MAX_CONNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.Store.MaxConns = int32(n)
		}
	}
	if v := env("STORE_MAX_INVESTIGATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxInvestigations = n
		}
	}
	if v := env("RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := env("EVIDENCE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.EvidenceLimit = n
		}
	}
}

func env(key string) string {
	return os.Getenv(envPrefix + key)
}

func truthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
