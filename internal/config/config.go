package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"PI_ENV"`
	HTTPAddr string `mapstructure:"PI_HTTP_ADDR"`

	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Scraper  ScraperConfig  `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type DBConfig struct {
	// Backend selects the storage backend: "postgres" or "memory".
	Backend     string `mapstructure:"PI_DB_BACKEND"`
	PostgresDSN string `mapstructure:"PI_POSTGRES_DSN"`
}

type CacheConfig struct {
	// Backend selects the cache backend: "redis", "memory" or "disabled".
	Backend   string        `mapstructure:"PI_CACHE_BACKEND"`
	RedisAddr string        `mapstructure:"PI_REDIS_ADDR"`
	TTL       time.Duration `mapstructure:"PI_CACHE_TTL"`
}

type ScraperConfig struct {
	ServiceURL   string        `mapstructure:"PI_SCRAPER_URL"`
	Timeout      time.Duration `mapstructure:"PI_SCRAPE_TIMEOUT"`       // per attempt
	Attempts     int           `mapstructure:"PI_SCRAPE_ATTEMPTS"`      // attempt ceiling
	RetryDelay   time.Duration `mapstructure:"PI_SCRAPE_RETRY_DELAY"`   // base delay between attempts
	ScrapeOnMiss bool          `mapstructure:"PI_SCRAPE_ON_MISS"`       // scrape when a page read misses the store
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"PI_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"PI_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("backend", ".env"),
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if !filepath.IsAbs(path) {
			if resolved, err := filepath.Abs(path); err == nil {
				abs = resolved
			}
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("PI_ENV", "dev")
	viper.SetDefault("PI_HTTP_ADDR", ":8080")
	viper.SetDefault("PI_DB_BACKEND", "memory")
	viper.SetDefault("PI_POSTGRES_DSN", "")
	viper.SetDefault("PI_CACHE_BACKEND", "redis")
	viper.SetDefault("PI_REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("PI_CACHE_TTL", "300s")
	viper.SetDefault("PI_SCRAPER_URL", "http://localhost:8070")
	viper.SetDefault("PI_SCRAPE_TIMEOUT", "30s")
	viper.SetDefault("PI_SCRAPE_ATTEMPTS", 3)
	viper.SetDefault("PI_SCRAPE_RETRY_DELAY", "2s")
	viper.SetDefault("PI_SCRAPE_ON_MISS", true)
	viper.SetDefault("PI_RATE_LIMIT_RPM", 120)
	viper.SetDefault("PI_CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	// Handle array parsing for comma-separated values
	if origins := viper.GetString("PI_CORS_ALLOWED_ORIGINS"); origins != "" {
		viper.Set("PI_CORS_ALLOWED_ORIGINS", strings.Split(origins, ","))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Backend {
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("PI_POSTGRES_DSN is required when PI_DB_BACKEND=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid PI_DB_BACKEND %q (must be postgres or memory)", c.Database.Backend)
	}

	switch c.Cache.Backend {
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("PI_REDIS_ADDR is required when PI_CACHE_BACKEND=redis")
		}
	case "memory", "disabled":
	default:
		return fmt.Errorf("invalid PI_CACHE_BACKEND %q (must be redis, memory or disabled)", c.Cache.Backend)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("PI_CACHE_TTL must be positive")
	}
	if c.Scraper.Attempts < 1 {
		return fmt.Errorf("PI_SCRAPE_ATTEMPTS must be at least 1")
	}
	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("PI_SCRAPE_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
