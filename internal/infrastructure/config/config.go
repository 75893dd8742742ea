package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Driver selects the remote store adapter.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	Remote RemoteConfig
	Redis  RedisConfig
	Admin  AdminConfig
	Login  LoginConfig

	FeeCurrency     string        `env:"FEE_CURRENCY,     default=PEN"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=15s"`
}

// RemoteConfig identifies the remote document store. Only APIKey and
// ProjectID are required; the rest are carried for the adapter.
type RemoteConfig struct {
	APIKey            string `env:"REMOTE_API_KEY"`
	AuthDomain        string `env:"REMOTE_AUTH_DOMAIN"`
	ProjectID         string `env:"REMOTE_PROJECT_ID"`
	StorageBucket     string `env:"REMOTE_STORAGE_BUCKET"`
	MessagingSenderID string `env:"REMOTE_MESSAGING_SENDER_ID"`
	AppID             string `env:"REMOTE_APP_ID"`

	URI       string `env:"REMOTE_URI,       default=mongodb://localhost:27017/?replicaSet=rs0"`
	Namespace string `env:"REMOTE_NAMESPACE, default=prod"`
	Driver    string `env:"REMOTE_DRIVER,    default=mongo"`
}

// RedisConfig locates the optional presence store. Presence tracking is off
// when Addr is empty.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// AdminConfig is the built-in administrator credential pair.
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME, default=admin"`
	Password string `env:"ADMIN_PASSWORD, default=admin"`
}

type LoginConfig struct {
	RatePerMinute int `env:"LOGIN_RATE_PER_MINUTE, default=10"`
	Burst         int `env:"LOGIN_BURST,           default=5"`
}

// Missing lists the environment variables whose absence makes the remote
// store unusable. Values made only of whitespace count as absent.
func (r RemoteConfig) Missing() []string {
	var missing []string
	if strings.TrimSpace(r.APIKey) == "" {
		missing = append(missing, "REMOTE_API_KEY")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		missing = append(missing, "REMOTE_PROJECT_ID")
	}
	return missing
}

// Load reads configuration from environment variables using go-envconfig.
// A .env file in the working directory fills in variables the environment
// does not set.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, ".env")
}

func load(ctx context.Context, dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}

	switch cfg.Remote.Driver {
	case DriverMongo, DriverMemory:
	default:
		return nil, fmt.Errorf("config: unknown REMOTE_DRIVER %q", cfg.Remote.Driver)
	}
	return &cfg, nil
}

// Address is the HTTP listen address.
func (c *Config) Address() string {
	return ":" + c.Port
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
