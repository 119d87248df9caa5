package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Payments PaymentsConfig
	Risk     RiskConfig
	Trust    TrustConfig
	Jobs     JobsConfig
	GCP      GCPConfig
	PubSub   PubSubConfig

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
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAYMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"BAYMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BAYMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAYMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BAYMARKET_AUTO_MIGRATE" default:"false"`
}

type ServiceConfig struct {
	Kind string `envconfig:"BAYMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAYMARKET_DB_DSN"`
	Driver string `envconfig:"BAYMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BAYMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"BAYMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BAYMARKET_DB_USER"`
	LegacyPassword string `envconfig:"BAYMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"BAYMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"BAYMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAYMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAYMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAYMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAYMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAYMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAYMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"BAYMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAYMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAYMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAYMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAYMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAYMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAYMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAYMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAYMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAYMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PaymentsConfig describes the upstream payment provider and the commission
// policy applied at settlement time.
type PaymentsConfig struct {
	Provider          string        `envconfig:"BAYMARKET_PAYMENT_PROVIDER" default:"payflow"`
	WebhookSecret     string        `envconfig:"BAYMARKET_PAYMENT_WEBHOOK_SECRET" required:"true"`
	CommissionRate    string        `envconfig:"BAYMARKET_COMMISSION_RATE" default:"0.15"`
	SettlementLockTTL time.Duration `envconfig:"BAYMARKET_SETTLEMENT_LOCK_TTL" default:"5m"`
	RateLimit         int64         `envconfig:"BAYMARKET_WEBHOOK_RATE_LIMIT" default:"120"`
	RateLimitWindow   time.Duration `envconfig:"BAYMARKET_WEBHOOK_RATE_LIMIT_WINDOW" default:"1m"`
}

// Commission parses the configured commission rate. validate() has already
// guaranteed it parses and sits inside [0,1].
func (p PaymentsConfig) Commission() decimal.Decimal {
	rate, _ := decimal.NewFromString(p.CommissionRate)
	return rate
}

func (p PaymentsConfig) validate() error {
	rate, err := decimal.NewFromString(p.CommissionRate)
	if err != nil {
		return fmt.Errorf("invalid commission rate %q: %w", p.CommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate %q outside [0,1]", p.CommissionRate)
	}
	return nil
}

// RiskConfig tunes the automatic risk evaluation thresholds.
type RiskConfig struct {
	ChargebackWatchPct  float64 `envconfig:"BAYMARKET_RISK_CHARGEBACK_WATCH_PCT" default:"0.02"`
	ChargebackHighPct   float64 `envconfig:"BAYMARKET_RISK_CHARGEBACK_HIGH_PCT" default:"0.05"`
	ChargebackFreezePct float64 `envconfig:"BAYMARKET_RISK_CHARGEBACK_FREEZE_PCT" default:"0.10"`
	DisputeWatchCount   int     `envconfig:"BAYMARKET_RISK_DISPUTE_WATCH_COUNT" default:"3"`
	DisputeHighCount    int     `envconfig:"BAYMARKET_RISK_DISPUTE_HIGH_COUNT" default:"10"`
	VolumeSpikeWatch    float64 `envconfig:"BAYMARKET_RISK_VOLUME_SPIKE_WATCH" default:"3"`
	VolumeSpikeHigh     float64 `envconfig:"BAYMARKET_RISK_VOLUME_SPIKE_HIGH" default:"5"`
	BatchPageSize       int     `envconfig:"BAYMARKET_RISK_BATCH_PAGE_SIZE" default:"200"`
}

// TrustConfig tunes the trust score weighting.
type TrustConfig struct {
	VolumeWeight      float64 `envconfig:"BAYMARKET_TRUST_VOLUME_WEIGHT" default:"0.35"`
	DisputeFreeWeight float64 `envconfig:"BAYMARKET_TRUST_DISPUTE_FREE_WEIGHT" default:"0.40"`
	AgeWeight         float64 `envconfig:"BAYMARKET_TRUST_AGE_WEIGHT" default:"0.25"`
	BatchPageSize     int     `envconfig:"BAYMARKET_TRUST_BATCH_PAGE_SIZE" default:"200"`
}

// JobsConfig drives the cron worker cadence and the batch job lock window.
type JobsConfig struct {
	Interval time.Duration `envconfig:"BAYMARKET_JOBS_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"BAYMARKET_JOBS_LOCK_TTL" default:"2h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BAYMARKET_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"BAYMARKET_PUBSUB_NOTIFICATION_TOPIC" default:"bm-notification-events"`
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
