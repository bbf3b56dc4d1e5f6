package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Vision    VisionConfig    `mapstructure:"vision"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Flags     FlagsConfig     `mapstructure:"flags"`
	Products  ProductsConfig  `mapstructure:"products"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Schema          string        `mapstructure:"schema"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.Schema,
	)
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TLS       bool   `mapstructure:"tls"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	StreamName string `mapstructure:"stream_name"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// BatchConfig controls the backlog scoring worker
type BatchConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	InitialDelay   time.Duration `mapstructure:"initial_delay"`
	Interval       time.Duration `mapstructure:"interval"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
	ChunkSize      int           `mapstructure:"chunk_size"`
}

// VisionConfig configures the external image-detection collaborator
type VisionConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ScoringConfig holds the ordered rule table that turns a flag set into a score.
// The table is data, not code: clause order is part of the table's identity and
// changing it requires a Version bump so stored scores stay interpretable.
type ScoringConfig struct {
	Version        string       `mapstructure:"version"`
	Mode           string       `mapstructure:"mode"` // "first_match" or "weighted"
	DefaultScore   float64      `mapstructure:"default_score"`
	AlertThreshold float64      `mapstructure:"alert_threshold"`
	RuleTable      []RuleClause `mapstructure:"rule_table"`
}

// RuleClause matches when every named flag is present in the evaluated set
type RuleClause struct {
	Flags []string `mapstructure:"flags"`
	Score float64  `mapstructure:"score"`
}

// ScoringMode values
const (
	ModeFirstMatch = "first_match"
	ModeWeighted   = "weighted"
)

// FlagsConfig holds the predicate term lists and image thresholds
type FlagsConfig struct {
	Terms           map[string][]string `mapstructure:"terms"`
	ImageThresholds map[string]float64  `mapstructure:"image_thresholds"`
}

// ProductsConfig maps surface forms (including misspellings) to canonical names
type ProductsConfig struct {
	Dictionary map[string]string `mapstructure:"dictionary"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/riskwatch-lab")
	}

	// Environment variables
	v.SetEnvPrefix("RISKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested env vars explicitly (viper doesn't auto-bind nested struct fields)
	v.BindEnv("redis.host", "RISKWATCH_REDIS_HOST")
	v.BindEnv("redis.port", "RISKWATCH_REDIS_PORT")
	v.BindEnv("redis.password", "RISKWATCH_REDIS_PASSWORD")
	v.BindEnv("database.host", "RISKWATCH_DATABASE_HOST")
	v.BindEnv("database.port", "RISKWATCH_DATABASE_PORT")
	v.BindEnv("database.user", "RISKWATCH_DATABASE_USER")
	v.BindEnv("database.password", "RISKWATCH_DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "RISKWATCH_DATABASE_DBNAME")
	v.BindEnv("database.sslmode", "RISKWATCH_DATABASE_SSLMODE")
	v.BindEnv("nats.enabled", "RISKWATCH_NATS_ENABLED")
	v.BindEnv("app.environment", "RISKWATCH_APP_ENVIRONMENT")
	v.BindEnv("auth.api_key", "RISKWATCH_AUTH_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate checks the scoring rule table, flag terms and product dictionary.
// A broken table must be fatal at startup, never a silent undefined score.
func (c *Config) Validate() error {
	s := c.Scoring
	if s.Version == "" {
		return fmt.Errorf("scoring: version is required")
	}
	if s.Mode != "" && s.Mode != ModeFirstMatch && s.Mode != ModeWeighted {
		return fmt.Errorf("scoring: unknown mode %q", s.Mode)
	}
	if s.DefaultScore < 0 || s.DefaultScore > 1 {
		return fmt.Errorf("scoring: default_score %v out of [0,1]", s.DefaultScore)
	}
	if s.AlertThreshold < 0 || s.AlertThreshold > 1 {
		return fmt.Errorf("scoring: alert_threshold %v out of [0,1]", s.AlertThreshold)
	}
	for i, clause := range s.RuleTable {
		if len(clause.Flags) == 0 {
			return fmt.Errorf("scoring: rule_table clause %d has no flags; use default_score for the fallback", i)
		}
		if clause.Score < 0 || clause.Score > 1 {
			return fmt.Errorf("scoring: rule_table clause %d score %v out of [0,1]", i, clause.Score)
		}
	}
	for name, terms := range c.Flags.Terms {
		if len(terms) == 0 {
			return fmt.Errorf("flags: flag %q has an empty term list", name)
		}
	}
	for label, cutoff := range c.Flags.ImageThresholds {
		if cutoff < 0 || cutoff > 1 {
			return fmt.Errorf("flags: image threshold for %q is %v, out of [0,1]", label, cutoff)
		}
	}
	for surface, canonical := range c.Products.Dictionary {
		if strings.TrimSpace(surface) == "" || strings.TrimSpace(canonical) == "" {
			return fmt.Errorf("products: dictionary entry %q -> %q is blank", surface, canonical)
		}
	}
	return nil
}
