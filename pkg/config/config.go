package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "interbox"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "INTERBOX_DB_DSN"
	EnvDBHost = "INTERBOX_DB_HOST"
	EnvDBUser = "INTERBOX_DB_USER"
	EnvDBName = "INTERBOX_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	OpenPix      OpenPixConfig
	Ledger       LedgerConfig
	Split        SplitConfig
	Sendgrid     SendgridConfig
	Poller       PollerConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"INTERBOX_APP_ENV" required:"true"`
	Port         string `envconfig:"INTERBOX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"INTERBOX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"INTERBOX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"INTERBOX_DB_DSN"`
	Driver string `envconfig:"INTERBOX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"INTERBOX_DB_HOST"`
	LegacyPort     int    `envconfig:"INTERBOX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"INTERBOX_DB_USER"`
	LegacyPassword string `envconfig:"INTERBOX_DB_PASSWORD"`
	LegacyName     string `envconfig:"INTERBOX_DB_NAME"`
	LegacySSLMode  string `envconfig:"INTERBOX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"INTERBOX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INTERBOX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INTERBOX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INTERBOX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"INTERBOX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"INTERBOX_REDIS_ADDR"`
	Password     string        `envconfig:"INTERBOX_REDIS_PASSWORD"`
	DB           int           `envconfig:"INTERBOX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INTERBOX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INTERBOX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INTERBOX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INTERBOX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INTERBOX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// OpenPixConfig carries credentials for the PIX gateway. Charge endpoints
// authenticate with the AppID header; the transfer endpoint uses Basic auth.
type OpenPixConfig struct {
	BaseURL        string        `envconfig:"INTERBOX_OPENPIX_BASE_URL" default:"https://api.openpix.com.br"`
	AppID          string        `envconfig:"INTERBOX_OPENPIX_APP_ID" required:"true"`
	ClientID       string        `envconfig:"INTERBOX_OPENPIX_CLIENT_ID"`
	ClientSecret   string        `envconfig:"INTERBOX_OPENPIX_CLIENT_SECRET"`
	WebhookSecret  string        `envconfig:"INTERBOX_OPENPIX_WEBHOOK_SECRET"`
	RequestTimeout time.Duration `envconfig:"INTERBOX_OPENPIX_TIMEOUT" default:"15s"`
	ChargeTTL      time.Duration `envconfig:"INTERBOX_OPENPIX_CHARGE_TTL" default:"24h"`
}

// LedgerConfig selects the append-only order ledger backend.
type LedgerConfig struct {
	Backend   string        `envconfig:"INTERBOX_LEDGER_BACKEND" default:"file"`
	Dir       string        `envconfig:"INTERBOX_LEDGER_DIR" default:"data"`
	OrderFile string        `envconfig:"INTERBOX_LEDGER_ORDER_FILE" default:"orders.json"`
	SplitFile string        `envconfig:"INTERBOX_LEDGER_SPLIT_FILE" default:"splits.json"`
	BlobURL   string        `envconfig:"INTERBOX_LEDGER_BLOB_URL"`
	BlobToken string        `envconfig:"INTERBOX_LEDGER_BLOB_TOKEN"`
	Timeout   time.Duration `envconfig:"INTERBOX_LEDGER_TIMEOUT" default:"10s"`
}

const (
	LedgerBackendFile = "file"
	LedgerBackendBlob = "blob"
)

// SplitConfig holds the static disbursement table as JSON, keyed by order
// category. See internal/splits for the parsed shape.
type SplitConfig struct {
	TableJSON string `envconfig:"INTERBOX_SPLIT_TABLE_JSON" default:"{\"produto\":[{\"recipient\":\"flowpay\",\"pix_key\":\"flowpay@interbox.com.br\",\"percent\":\"30\",\"primary\":true},{\"recipient\":\"fornecedor\",\"pix_key\":\"fornecedor@interbox.com.br\",\"percent\":\"70\"}]}"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"INTERBOX_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"INTERBOX_SENDGRID_FROM_EMAIL" default:"pagamentos@interbox.com.br"`
}

type PollerConfig struct {
	Interval    time.Duration `envconfig:"INTERBOX_POLL_INTERVAL" default:"10s"`
	Timeout     time.Duration `envconfig:"INTERBOX_POLL_TIMEOUT" default:"5m"`
	SweepWindow time.Duration `envconfig:"INTERBOX_POLL_SWEEP_WINDOW" default:"10m"`
	SweepEvery  time.Duration `envconfig:"INTERBOX_POLL_SWEEP_EVERY" default:"30s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"INTERBOX_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"INTERBOX_CRON_LOCK_TTL" default:"65m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"INTERBOX_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
