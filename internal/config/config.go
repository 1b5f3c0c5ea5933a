package config // package config loads application configuration from environment variables

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; required ones make Load fail when missing.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"dev"`    // application environment (dev/test/prod)
	Port     string `env:"APP_PORT" envDefault:"3001"`  // HTTP port to listen on
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"` // debug, info, warn, error

	DBUser           string        `env:"DB_USER,required,notEmpty"`
	DBPass           string        `env:"DB_PASS"` // empty allowed
	DBHost           string        `env:"DB_HOST,required,notEmpty"`
	DBPort           string        `env:"DB_PORT" envDefault:"3306"`
	DBName           string        `env:"DB_NAME,required,notEmpty"`
	DBConnectRetries int           `env:"DB_CONNECT_RETRIES" envDefault:"5"`
	DBConnectDelay   time.Duration `env:"DB_CONNECT_RETRY_DELAY" envDefault:"5s"`
	DBAutoMigrate    bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	JWTSecret        string        `env:"JWT_SECRET,required,notEmpty"`
	AccessTTLMin     int           `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"60"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`
	AdminUsername    string        `env:"ADMIN_USERNAME,required,notEmpty"`
	AdminPassword    string        `env:"ADMIN_PASSWORD,required,notEmpty"`
	PasswordResetTTL time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"2h"`
	RabbitURL        string        `env:"RABBITMQ_URL"` // empty disables domain events
	NotifyLogDir     string        `env:"NOTIFY_LOG_DIR" envDefault:"logs"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestDBTimeout time.Duration `env:"REQUEST_DB_TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file and then parses the environment into a
// Config. A missing .env is not an error; a missing required variable is.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.AccessTTLMin <= 0 {
		return Config{}, fmt.Errorf("config: ACCESS_TOKEN_TTL_MIN must be positive, got %d", cfg.AccessTTLMin)
	}
	if cfg.PasswordResetTTL <= 0 {
		return Config{}, fmt.Errorf("config: PASSWORD_RESET_TTL must be positive, got %s", cfg.PasswordResetTTL)
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production defaults
// (JSON logs, no debug output).
func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}
