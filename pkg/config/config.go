package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Midtrans     MidtransConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	PubSub       PubSubConfig
	Cron         CronConfig
}

var branchCodePattern = regexp.MustCompile(`^[0-9]{3}$`)

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.App.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EDUTRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"EDUTRACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EDUTRACK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"EDUTRACK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"EDUTRACK_LOG_WARN_STACK" default:"false"`
	BranchCode   string `envconfig:"EDUTRACK_BRANCH_CODE" default:"001"`
	TimeZone     string `envconfig:"EDUTRACK_BUSINESS_TZ" default:"Asia/Jakarta"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// Location resolves the business time zone used for sequence periods.
func (a AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(a.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load business time zone %q: %w", name, err)
	}
	return loc, nil
}

func (a AppConfig) validate() error {
	if !branchCodePattern.MatchString(a.BranchCode) {
		return fmt.Errorf("%s must be exactly three digits, got %q", EnvBranchCode, a.BranchCode)
	}
	if _, err := a.Location(); err != nil {
		return err
	}
	return nil
}

type ServiceConfig struct {
	Kind string `envconfig:"EDUTRACK_SERVICE_KIND" default:"api"`
	Name string `envconfig:"EDUTRACK_SERVICE_NAME" default:"edutrack-commerce"`
}

type DBConfig struct {
	DSN    string `envconfig:"EDUTRACK_DB_DSN"`
	Driver string `envconfig:"EDUTRACK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EDUTRACK_DB_HOST"`
	LegacyPort     int    `envconfig:"EDUTRACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EDUTRACK_DB_USER"`
	LegacyPassword string `envconfig:"EDUTRACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"EDUTRACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"EDUTRACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EDUTRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EDUTRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EDUTRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EDUTRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"EDUTRACK_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EDUTRACK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EDUTRACK_REDIS_ADDR"`
	Password     string        `envconfig:"EDUTRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"EDUTRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EDUTRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EDUTRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EDUTRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EDUTRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EDUTRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EDUTRACK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EDUTRACK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EDUTRACK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type MidtransConfig struct {
	ServerKey       string `envconfig:"EDUTRACK_MIDTRANS_SERVER_KEY" required:"true"`
	Env             string `envconfig:"EDUTRACK_MIDTRANS_ENV" default:"sandbox"`
	VerifySignature bool   `envconfig:"EDUTRACK_MIDTRANS_VERIFY_SIGNATURE" default:"true"`
	// BaseURL overrides the Snap endpoint. Empty uses the environment default.
	BaseURL string        `envconfig:"EDUTRACK_MIDTRANS_BASE_URL"`
	Timeout time.Duration `envconfig:"EDUTRACK_MIDTRANS_TIMEOUT" default:"30s"`
}

// Environment returns the normalized Midtrans environment (sandbox/production).
func (m MidtransConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(m.Env))
	if env == "" {
		return MidtransSandbox
	}
	return env
}

type CheckoutConfig struct {
	TaxRatePercent int           `envconfig:"EDUTRACK_CHECKOUT_TAX_RATE_PERCENT" default:"11"`
	OrderTTL       time.Duration `envconfig:"EDUTRACK_CHECKOUT_ORDER_TTL" default:"24h"`
}

func (c CheckoutConfig) validate() error {
	if c.TaxRatePercent < 0 || c.TaxRatePercent > 100 {
		return fmt.Errorf("%s must be between 0 and 100", EnvTaxRatePercent)
	}
	if c.OrderTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvOrderTTL)
	}
	return nil
}

type FeatureFlagsConfig struct {
	AllowDevMigrate bool `envconfig:"EDUTRACK_ALLOW_DEV_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookDedupeTTL time.Duration `envconfig:"EDUTRACK_WEBHOOK_DEDUPE_TTL" default:"24h"`
	OutboxBatchSize  int           `envconfig:"EDUTRACK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	OutboxPollMS     int           `envconfig:"EDUTRACK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	OutboxMaxAttempt int           `envconfig:"EDUTRACK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	OutboxRetention  time.Duration `envconfig:"EDUTRACK_OUTBOX_RETENTION" default:"720h"`
}

type PubSubConfig struct {
	ProjectID              string `envconfig:"EDUTRACK_GCP_PROJECT_ID"`
	DomainTopic            string `envconfig:"EDUTRACK_PUBSUB_DOMAIN_TOPIC" default:"edutrack-domain-events"`
	CredentialsJSON        string `envconfig:"EDUTRACK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EDUTRACK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"EDUTRACK_CRON_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"EDUTRACK_CRON_LOCK_TTL" default:"4m"`
	ExpiryBatchSize int           `envconfig:"EDUTRACK_CRON_EXPIRY_BATCH_SIZE" default:"100"`
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
