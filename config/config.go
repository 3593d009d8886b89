// Package config loads the application configuration once at startup.
package config

import (
	stderrors "errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type JWTConfig struct {
	Secret          string
	ExpiresIn       time.Duration
	CookieExpiresIn time.Duration
}

type PaginationConfig struct {
	DefaultLimit uint
	MaxLimit     uint
}

type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether an SMTP server is configured.
func (e EmailConfig) Enabled() bool {
	return e.Host != ""
}

type Config struct {
	Env            string
	Port           uint16
	Mongo          MongoConfig
	JWT            JWTConfig
	BcryptCost     int
	ResetTokenTTL  time.Duration
	Pagination     PaginationConfig
	RateLimit      RateLimitConfig
	Redis          RedisConfig
	Email          EmailConfig
	LogLevel       string
	MetricsEnabled bool
	PublicDir      string
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Options says where configuration files live. Missing files are skipped.
type Options struct {
	EnvFiles   []string
	ConfigFile string
}

var defaults = map[string]any{
	"APP_ENV":                  EnvDevelopment,
	"PORT":                     3000,
	"MONGO_URI":                "mongodb://localhost:27017/natours",
	"MONGO_DATABASE":           "",
	"MONGO_CONNECT_TIMEOUT":    "10s",
	"JWT_SECRET":               "",
	"JWT_EXPIRES_IN":           "90d",
	"JWT_COOKIE_EXPIRES_IN":    90,
	"BCRYPT_COST":              12,
	"RESET_TOKEN_TTL":          "10m",
	"PAGINATION_DEFAULT_LIMIT": 100,
	"PAGINATION_MAX_LIMIT":     100,
	"RATE_LIMIT_MAX":           100,
	"RATE_LIMIT_WINDOW":        "1h",
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 1,
	"EMAIL_HOST":               "",
	"EMAIL_PORT":               587,
	"EMAIL_USERNAME":           "",
	"EMAIL_PASSWORD":           "",
	"EMAIL_FROM":               "Natours <hello@natours.io>",
	"LOG_LEVEL":                "info",
	"METRICS_ENABLED":          true,
	"PUBLIC_DIR":               "public",
}

// Load reads .env files, then the optional YAML file, then the environment.
// Later sources win.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		// godotenv never overrides variables that are already set
		_ = godotenv.Load(file)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) && !stderrors.Is(err, fs.ErrNotExist) {
				return nil, errors.Errorf("read config %s: %v", opts.ConfigFile, err)
			}
		}
	}

	v.AutomaticEnv()

	return FromViper(v)
}

// FromViper builds and validates a Config from already loaded settings.
func FromViper(v *viper.Viper) (*Config, error) {
	jwtExpiresIn, err := ParseDuration(v.GetString("JWT_EXPIRES_IN"))
	if err != nil {
		return nil, errors.Errorf("JWT_EXPIRES_IN: %v", err)
	}
	resetTTL, err := ParseDuration(v.GetString("RESET_TOKEN_TTL"))
	if err != nil {
		return nil, errors.Errorf("RESET_TOKEN_TTL: %v", err)
	}
	window, err := ParseDuration(v.GetString("RATE_LIMIT_WINDOW"))
	if err != nil {
		return nil, errors.Errorf("RATE_LIMIT_WINDOW: %v", err)
	}
	connectTimeout, err := ParseDuration(v.GetString("MONGO_CONNECT_TIMEOUT"))
	if err != nil {
		return nil, errors.Errorf("MONGO_CONNECT_TIMEOUT: %v", err)
	}

	cfg := &Config{
		Env:  strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		Port: uint16(v.GetUint("PORT")),
		Mongo: MongoConfig{
			URI:            v.GetString("MONGO_URI"),
			Database:       v.GetString("MONGO_DATABASE"),
			ConnectTimeout: connectTimeout,
		},
		JWT: JWTConfig{
			Secret:          v.GetString("JWT_SECRET"),
			ExpiresIn:       jwtExpiresIn,
			CookieExpiresIn: time.Duration(v.GetInt("JWT_COOKIE_EXPIRES_IN")) * 24 * time.Hour,
		},
		BcryptCost:    v.GetInt("BCRYPT_COST"),
		ResetTokenTTL: resetTTL,
		Pagination: PaginationConfig{
			DefaultLimit: v.GetUint("PAGINATION_DEFAULT_LIMIT"),
			MaxLimit:     v.GetUint("PAGINATION_MAX_LIMIT"),
		},
		RateLimit: RateLimitConfig{
			Max:    v.GetInt("RATE_LIMIT_MAX"),
			Window: window,
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Email: EmailConfig{
			Host:     v.GetString("EMAIL_HOST"),
			Port:     v.GetInt("EMAIL_PORT"),
			Username: v.GetString("EMAIL_USERNAME"),
			Password: v.GetString("EMAIL_PASSWORD"),
			From:     v.GetString("EMAIL_FROM"),
		},
		LogLevel:       v.GetString("LOG_LEVEL"),
		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
		PublicDir:      v.GetString("PUBLIC_DIR"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		problems = append(problems, "APP_ENV must be development or production")
	}
	if c.Port == 0 {
		problems = append(problems, "PORT is required")
	}
	if c.Mongo.URI == "" {
		problems = append(problems, "MONGO_URI is required")
	}
	if c.JWT.Secret == "" {
		problems = append(problems, "JWT_SECRET is required")
	} else if c.IsProduction() && len(c.JWT.Secret) < 32 {
		problems = append(problems, "JWT_SECRET must be at least 32 characters in production")
	}
	if c.JWT.ExpiresIn <= 0 {
		problems = append(problems, "JWT_EXPIRES_IN must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		problems = append(problems, "BCRYPT_COST must be between 4 and 31")
	}
	if c.Pagination.DefaultLimit == 0 || c.Pagination.MaxLimit == 0 {
		problems = append(problems, "PAGINATION_DEFAULT_LIMIT and PAGINATION_MAX_LIMIT must be positive")
	} else if c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		problems = append(problems, "PAGINATION_DEFAULT_LIMIT cannot exceed PAGINATION_MAX_LIMIT")
	}
	if c.RateLimit.Max < 0 {
		problems = append(problems, "RATE_LIMIT_MAX cannot be negative")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// ParseDuration accepts Go durations plus a day suffix, e.g. "90d".
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, errors.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

