package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"perp-gateway/pkg/secrets"
)

const envPrefix = "GATEWAY"

// Venue names accepted by venue.name.
const (
	VenueHyperliquid = "hyperliquid"
	VenuePaper       = "paper"
)

// Config holds every setting the gateway reads at startup.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Venue   VenueConfig   `mapstructure:"venue"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	GCP     GCPConfig     `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type VenueConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds every upstream call. Required.
	Timeout          time.Duration `mapstructure:"timeout"`
	WeightPerMinute  int           `mapstructure:"weight_per_minute"`
	PaperMarketsFile string        `mapstructure:"paper_markets_file"`
	// PaperMarkSource is a live venue base URL whose marks the paper venue follows.
	PaperMarkSource   string        `mapstructure:"paper_mark_source"`
	PaperMarkInterval time.Duration `mapstructure:"paper_mark_interval"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	Issuer      string        `mapstructure:"issuer"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	LoginWindow time.Duration `mapstructure:"login_window"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
	// MasterKey is the base64 AES-256 key used for new ciphertexts.
	MasterKey string `mapstructure:"master_key"`
	// RetiredMasterKeys still decrypt older rows, oldest first.
	RetiredMasterKeys []string `mapstructure:"retired_master_keys"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

// Load reads .env, an optional config file and GATEWAY_* variables into Config.
// Secrets missing locally are pulled from GCP Secret Manager when enabled.
func Load(configPath string) (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	overrideFromEnv(&cfg)

	if cfg.GCP.UseSecrets && cfg.GCP.ProjectID != "" {
		if err := loadSecretsFromGCP(context.Background(), &cfg); err != nil {
			return nil, fmt.Errorf("load secrets from GCP: %w", err)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 50)

	v.SetDefault("venue.name", VenueHyperliquid)
	v.SetDefault("venue.base_url", "https://api.hyperliquid-testnet.xyz")
	// venue.timeout has no default; it must be configured.
	_ = v.BindEnv("venue.timeout")
	v.SetDefault("venue.weight_per_minute", 1200)
	v.SetDefault("venue.paper_markets_file", "")
	v.SetDefault("venue.paper_mark_source", "")
	v.SetDefault("venue.paper_mark_interval", "5s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "perp-gateway")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.login_window", "5m")

	v.SetDefault("storage.db_path", "./data/gateway.db")
	v.SetDefault("storage.master_key", "")
	v.SetDefault("storage.retired_master_keys", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", false)

	names := secrets.DefaultSecretNames()
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.secret_names.jwt_secret", names.JWTSecret)
	v.SetDefault("gcp.secret_names.master_key", names.MasterKey)
}

// overrideFromEnv honours the short variable names used by existing deployments.
func overrideFromEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Storage.DBPath = getEnv("DB_PATH", cfg.Storage.DBPath)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Storage.MasterKey = getEnv("MASTER_ENCRYPTION_KEY", cfg.Storage.MasterKey)
	if getEnv("DRY_RUN", "false") == "true" {
		cfg.Venue.Name = VenuePaper
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitAndTrim(origins)
	}
	cfg.Venue.Name = strings.ToLower(strings.TrimSpace(cfg.Venue.Name))
}

func loadSecretsFromGCP(ctx context.Context, cfg *Config) error {
	log := logrus.NewEntry(logrus.StandardLogger()).WithField("component", "config")
	sm, err := secrets.NewGCPSecretManager(ctx, cfg.GCP.ProjectID, log)
	if err != nil {
		return err
	}
	defer sm.Close()

	secrets.Fill(ctx, sm, log, map[string]*string{
		cfg.GCP.SecretNames.JWTSecret: &cfg.Auth.JWTSecret,
		cfg.GCP.SecretNames.MasterKey: &cfg.Storage.MasterKey,
	})
	return nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Venue.Timeout <= 0 {
		return errors.New("venue.timeout must be set to a positive duration")
	}
	switch c.Venue.Name {
	case VenueHyperliquid:
		if c.Venue.BaseURL == "" {
			return errors.New("venue.base_url is required for hyperliquid")
		}
	case VenuePaper:
	default:
		return fmt.Errorf("unknown venue %q", c.Venue.Name)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Storage.MasterKey == "" {
		return errors.New("storage.master_key is required")
	}
	if c.Storage.DBPath == "" {
		return errors.New("storage.db_path is required")
	}
	return nil
}

// DryRun reports whether orders go to the simulated venue.
func (c *Config) DryRun() bool {
	return c.Venue.Name == VenuePaper
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
