package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	KeyStorageEphemeral  = "ephemeral"
	KeyStoragePersistent = "persistent"

	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	MailLog  = "log"
	MailSMTP = "smtp"
)

type Config struct {
	Issuer         string `env:"IDENTITY_ISSUER"           envDefault:"selfie"`
	KeyStorageMode string `env:"IDENTITY_KEY_STORAGE_MODE" envDefault:"ephemeral"` // ephemeral, persistent
	MasterKeyPath  string `env:"IDENTITY_MASTER_KEY_PATH"`                         // persistent keys: file holding the master key
	MasterKey      string `env:"IDENTITY_MASTER_KEY"`                              // persistent keys: used when no path is set
	PepperFile     string `env:"IDENTITY_PEPPER_FILE"      envDefault:"pepper"`

	StoreDriver   string `env:"IDENTITY_STORE_DRIVER"   envDefault:"sqlite"` // sqlite, redis
	DatabaseFile  string `env:"IDENTITY_DATABASE_FILE"  envDefault:"identity.db"`
	RedisAddr     string `env:"IDENTITY_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"IDENTITY_REDIS_PASSWORD"`
	RedisDB       int    `env:"IDENTITY_REDIS_DB"       envDefault:"0"`
	RedisPrefix   string `env:"IDENTITY_REDIS_PREFIX"   envDefault:"selfie:"`

	TOTPIssuer string `env:"IDENTITY_TOTP_ISSUER" envDefault:"Selfie"`

	MailDriver   string `env:"IDENTITY_MAIL_DRIVER"   envDefault:"log"` // log, smtp
	SMTPHost     string `env:"IDENTITY_SMTP_HOST"`
	SMTPPort     int    `env:"IDENTITY_SMTP_PORT"     envDefault:"587"`
	SMTPUsername string `env:"IDENTITY_SMTP_USERNAME"`
	SMTPPassword string `env:"IDENTITY_SMTP_PASSWORD"`
	SMTPFrom     string `env:"IDENTITY_SMTP_FROM"`
	SMTPTLS      string `env:"IDENTITY_SMTP_TLS"      envDefault:"starttls"` // starttls, implicit, none
	AppURL       string `env:"IDENTITY_APP_URL"       envDefault:"http://localhost:8080"`

	Env       string `env:"ENV"        envDefault:"dev"`  // dev, staging, prod
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"` // debug, info, warn, error
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json, text

	Port                 int           `env:"PORT"                  envDefault:"8080"`
	GRPCPort             int           `env:"GRPC_PORT"             envDefault:"9090"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown modes and settings a selected mode cannot run
// without.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("config: IDENTITY_ISSUER is required")
	}

	switch c.KeyStorageMode {
	case KeyStorageEphemeral:
	case KeyStoragePersistent:
		if c.MasterKeyPath == "" && c.MasterKey == "" {
			return fmt.Errorf("config: persistent keys need IDENTITY_MASTER_KEY_PATH or IDENTITY_MASTER_KEY")
		}
	default:
		return fmt.Errorf("config: unknown key storage mode %q", c.KeyStorageMode)
	}

	switch c.StoreDriver {
	case StoreSQLite:
		if c.DatabaseFile == "" {
			return fmt.Errorf("config: IDENTITY_DATABASE_FILE is required for the sqlite store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("config: IDENTITY_REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}

	switch c.MailDriver {
	case MailLog:
	case MailSMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return fmt.Errorf("config: smtp mail needs IDENTITY_SMTP_HOST and IDENTITY_SMTP_FROM")
		}
	default:
		return fmt.Errorf("config: unknown mail driver %q", c.MailDriver)
	}

	if c.Port <= 0 || c.GRPCPort <= 0 {
		return fmt.Errorf("config: PORT and GRPC_PORT must be positive")
	}
	return nil
}
