package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Session strategies.
const (
	SessionStrategyRedis = "redis"
	SessionStrategyJWT   = "jwt"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	LogLevel    string `yaml:"logLevel"`
	Environment string `yaml:"environment"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SessionStrategy string `yaml:"sessionStrategy"`
	SessionTTL      string `yaml:"sessionTTL"`
	JWTSecret       string `yaml:"jwtSecret"`

	OpenAIAPIKey    string `yaml:"openAIAPIKey"`
	OpenAIBaseURL   string `yaml:"openAIBaseURL"`
	GenerationModel string `yaml:"generationModel"`
	AITimeout       string `yaml:"aiTimeout"`

	RediagnoseEveryTurn bool `yaml:"rediagnoseEveryTurn"`

	ResourceCacheTTL   string `yaml:"resourceCacheTTL"`
	CacheSweepInterval string `yaml:"cacheSweepInterval"`

	ChatRateLimitPerMinute int  `yaml:"chatRateLimitPerMinute"`
	TrustForwardedHeaders  bool `yaml:"trustForwardedHeaders"`

	AllowSeeding bool `yaml:"allowSeeding"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("ALLOW_SEEDING"); v != "" {
		cfg.AllowSeeding = v == "true"
	}
	if v := os.Getenv("CHAT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChatRateLimitPerMinute = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.SessionStrategy == "" {
		cfg.SessionStrategy = SessionStrategyRedis
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "24h"
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gpt-4o"
	}
	if cfg.AITimeout == "" {
		cfg.AITimeout = "15s"
	}
	if cfg.ResourceCacheTTL == "" {
		cfg.ResourceCacheTTL = "10m"
	}
	if cfg.CacheSweepInterval == "" {
		cfg.CacheSweepInterval = "5m"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.SessionStrategy {
	case SessionStrategyRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis session strategy")
		}
	case SessionStrategyJWT:
		if cfg.JWTSecret == "" {
			return errors.New("config: jwtSecret is required for the jwt session strategy (set JWT_SECRET)")
		}
	default:
		return fmt.Errorf("config: unknown sessionStrategy %q (want redis or jwt)", cfg.SessionStrategy)
	}
	if cfg.ChatRateLimitPerMinute < 0 {
		return errors.New("config: chatRateLimitPerMinute must be >= 0")
	}
	return nil
}

// IsProduction reports whether seeding and other development-only
// affordances should be locked down.
func (cfg FileConfig) IsProduction() bool {
	return cfg.Environment == "production"
}

// ParseSessionTTL parses the session TTL duration string.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	return dur, nil
}

// ParseAITimeout parses the generation deadline duration string.
func ParseAITimeout(timeoutStr string) (time.Duration, error) {
	if timeoutStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return 0, fmt.Errorf("invalid aiTimeout duration: %w", err)
	}
	return dur, nil
}

// ParseResourceCacheTTL parses the resource cache TTL duration string.
func ParseResourceCacheTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid resourceCacheTTL duration: %w", err)
	}
	return dur, nil
}

// ParseCacheSweepInterval parses the cache sweep interval string.
func ParseCacheSweepInterval(intervalStr string) (time.Duration, error) {
	if intervalStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(intervalStr)
	if err != nil {
		return 0, fmt.Errorf("invalid cacheSweepInterval duration: %w", err)
	}
	return dur, nil
}
