package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GRANTFLOW_SERVER_ADDR.
const EnvPrefix = "GRANTFLOW"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Narrative    NarrativeConfig    `mapstructure:"narrative"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateBurst       int           `mapstructure:"rate_burst"`
	RatePerSecond   int           `mapstructure:"rate_per_second"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	Secret               string        `mapstructure:"secret"`
	Issuer               string        `mapstructure:"issuer"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	AllowDevTokens       bool          `mapstructure:"allow_dev_tokens"`
	PermissionMatrixFile string        `mapstructure:"permission_matrix_file"`
}

type OrchestratorConfig struct {
	MinDrafts        int           `mapstructure:"min_drafts"`
	NarrativeTimeout time.Duration `mapstructure:"narrative_timeout"`
}

type NarrativeConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, template
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxFailures int           `mapstructure:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads defaults, then the optional YAML file at configPath, then
// GRANTFLOW_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Auth.Secret = os.ExpandEnv(cfg.Auth.Secret)
	cfg.Narrative.APIKey = os.ExpandEnv(cfg.Narrative.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_burst", 50)
	v.SetDefault("server.rate_per_second", 20)
	v.SetDefault("server.max_body_bytes", int64(1<<20))

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 15*time.Minute)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "grantflow")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.allow_dev_tokens", false)
	v.SetDefault("auth.permission_matrix_file", "")

	v.SetDefault("orchestrator.min_drafts", 3)
	v.SetDefault("orchestrator.narrative_timeout", 20*time.Second)

	v.SetDefault("narrative.provider", "template")
	v.SetDefault("narrative.model", "gpt-4o-mini")
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.base_url", "https://api.openai.com/v1")
	v.SetDefault("narrative.max_failures", 3)
	v.SetDefault("narrative.cooldown", 2*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RateBurst <= 0 || c.Server.RatePerSecond <= 0 {
		errs = append(errs, errors.New("server rate limits must be positive"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Orchestrator.MinDrafts < 0 {
		errs = append(errs, errors.New("orchestrator.min_drafts must not be negative"))
	}
	if c.Orchestrator.NarrativeTimeout <= 0 {
		errs = append(errs, errors.New("orchestrator.narrative_timeout must be positive"))
	}
	switch c.Narrative.Provider {
	case "template":
	case "openai":
		if c.Narrative.APIKey == "" {
			errs = append(errs, errors.New("narrative.api_key is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown narrative.provider %q", c.Narrative.Provider))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
