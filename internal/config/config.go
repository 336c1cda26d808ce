package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort   string `env:"HTTP_PORT" envDefault:"8080"`
	AppName    string `env:"APP_NAME" envDefault:"Finance Tracking API"`
	AppVersion string `env:"APP_VERSION" envDefault:"1.0.0"`
	AppDebug   bool   `env:"APP_DEBUG" envDefault:"false"`
	APIPrefix  string `env:"API_PREFIX" envDefault:"/api/v1"`

	DatabaseURL      string        `env:"DATABASE_URL,required"`
	DatabaseMaxConns int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	DirectoryTimeout time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"3s"`
	RunMigrations    bool          `env:"RUN_MIGRATIONS" envDefault:"false"`

	JWTSecret            string `env:"JWT_SECRET,required"`
	JWTAlgorithm         string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"finance-tracker"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"30"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindow      time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	RateLimitRPS     float64       `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst   int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

var supportedAlgorithms = map[string]struct{}{
	"HS256": {},
	"HS384": {},
	"HS512": {},
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.JWTAlgorithm = strings.ToUpper(strings.TrimSpace(cfg.JWTAlgorithm))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza combinaciones que el servicio no soporta.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must not be empty")
	}
	if _, ok := supportedAlgorithms[c.JWTAlgorithm]; !ok {
		return fmt.Errorf("config: unsupported JWT_ALGORITHM %q", c.JWTAlgorithm)
	}
	if c.JWTAccessTTLMinutes <= 0 || c.JWTRefreshTTLMinutes <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.DirectoryTimeout <= 0 {
		return errors.New("config: DIRECTORY_TIMEOUT must be positive")
	}
	return nil
}

// AccessTTL devuelve la vigencia de los access tokens.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

// RefreshTTL devuelve la vigencia de los refresh tokens.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLMinutes) * time.Minute
}
