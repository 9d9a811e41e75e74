package infrastructures

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	AppName     string `env:"APP_NAME" envDefault:"change-engine"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`

	RedisAddress  string `env:"REDIS_ADDRESS" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	EventsChannel string `env:"EVENTS_CHANNEL" envDefault:"change-requests"`

	RateLimitEnabled bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitMax     int           `env:"RATE_LIMIT_MAX" envDefault:"120"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	DispatchTimeout       time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"30s"`
	ConnectorBaseURL      string        `env:"CONNECTOR_BASE_URL"`
	ConnectorEnvironments []string      `env:"CONNECTOR_ENVIRONMENTS" envDefault:"DEV,STAGING,PRODUCTION" envSeparator:","`

	HighImpactMode     string           `env:"HIGH_IMPACT_MODE" envDefault:"elevate"`
	AnalyzerTableRows  int64            `env:"ANALYZER_DEFAULT_TABLE_ROWS" envDefault:"100000"`
	AnalyzerTableHints map[string]int64 `env:"ANALYZER_TABLE_ROWS" envSeparator:"," envKeyValSeparator:":"`
}

var Config *AppConfig

// ParseConfig reads the environment, after loading .env when present.
func ParseConfig() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.HighImpactMode) {
	case "elevate", "block":
	default:
		return fmt.Errorf("HIGH_IMPACT_MODE must be elevate or block, got %q", c.HighImpactMode)
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitMax <= 0 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return nil
}

// LoadConfig parses the configuration and publishes it as Config.
func LoadConfig() (*AppConfig, error) {
	cfg, err := ParseConfig()
	if err != nil {
		return nil, err
	}
	Config = cfg
	return Config, nil
}
