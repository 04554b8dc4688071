package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	ShareToken   ShareTokenConfig
	TeamCart     TeamCartConfig
	Payments     PaymentsConfig
	Projection   ProjectionConfig
	Queue        QueueConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.TeamCart.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"TEAMCART_APP_ENV" required:"true"`
	Port         string   `envconfig:"TEAMCART_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"TEAMCART_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"TEAMCART_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"TEAMCART_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"TEAMCART_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TEAMCART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"TEAMCART_DB_DSN"`
	SQLitePath string `envconfig:"TEAMCART_SQLITE_PATH" default:"teamcart.db"`

	Host     string `envconfig:"TEAMCART_DB_HOST"`
	Port     int    `envconfig:"TEAMCART_DB_PORT" default:"5432"`
	User     string `envconfig:"TEAMCART_DB_USER"`
	Password string `envconfig:"TEAMCART_DB_PASSWORD"`
	Name     string `envconfig:"TEAMCART_DB_NAME"`
	SSLMode  string `envconfig:"TEAMCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TEAMCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TEAMCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TEAMCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TEAMCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TEAMCART_REDIS_URL"`
	Address      string        `envconfig:"TEAMCART_REDIS_ADDR"`
	Password     string        `envconfig:"TEAMCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"TEAMCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TEAMCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TEAMCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TEAMCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TEAMCART_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"TEAMCART_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// JWTConfig signs member access tokens handed out on create/join.
type JWTConfig struct {
	Secret            string `envconfig:"TEAMCART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TEAMCART_JWT_ISSUER" default:"teamcart"`
	ExpirationMinutes int    `envconfig:"TEAMCART_JWT_EXPIRATION_MINUTES" default:"720"`
}

func (j JWTConfig) TTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type ShareTokenConfig struct {
	Secret string        `envconfig:"TEAMCART_SHARE_TOKEN_SECRET" required:"true"`
	TTL    time.Duration `envconfig:"TEAMCART_SHARE_TOKEN_TTL" default:"2h"`
}

type TeamCartConfig struct {
	AllocationStrategy string        `envconfig:"TEAMCART_ALLOCATION_STRATEGY" default:"proportional"`
	CommandMaxAttempts int           `envconfig:"TEAMCART_COMMAND_MAX_ATTEMPTS" default:"3"`
	Currency           string        `envconfig:"TEAMCART_CURRENCY" default:"USD"`
	MaxLifetime        time.Duration `envconfig:"TEAMCART_MAX_LIFETIME" default:"24h"`
}

func (t TeamCartConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(t.AllocationStrategy)) {
	case AllocationProportional, AllocationEqualBase:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvAllocationStrategy, AllocationProportional, AllocationEqualBase)
	}
	if len(strings.TrimSpace(t.Currency)) != 3 {
		return fmt.Errorf("%s must be an ISO-4217 code", EnvCurrency)
	}
	return nil
}

type PaymentsConfig struct {
	GatewayTimeout time.Duration `envconfig:"TEAMCART_PAYMENT_GATEWAY_TIMEOUT" default:"10s"`
}

type ProjectionConfig struct {
	ViewTTL         time.Duration `envconfig:"TEAMCART_PROJECTION_VIEW_TTL" default:"24h"`
	ReconcileWindow time.Duration `envconfig:"TEAMCART_PROJECTION_RECONCILE_WINDOW" default:"15m"`
	ReconcileLimit  int           `envconfig:"TEAMCART_PROJECTION_RECONCILE_LIMIT" default:"500"`
}

type QueueConfig struct {
	Enabled     bool   `envconfig:"TEAMCART_QUEUE_ENABLED" default:"true"`
	Name        string `envconfig:"TEAMCART_QUEUE_NAME" default:"teamcart"`
	Concurrency int    `envconfig:"TEAMCART_QUEUE_CONCURRENCY" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"TEAMCART_CRON_INTERVAL" default:"1m"`
	SweepBatchSize      int           `envconfig:"TEAMCART_CRON_SWEEP_BATCH_SIZE" default:"200"`
	OutboxRetentionDays int           `envconfig:"TEAMCART_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TEAMCART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TEAMCART_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"TEAMCART_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TEAMCART_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"TEAMCART_PUBSUB_DOMAIN_TOPIC" default:"teamcart-domain-events"`
	OrdersTopic string `envconfig:"TEAMCART_PUBSUB_ORDERS_TOPIC" default:"teamcart-orders"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TEAMCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TEAMCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TEAMCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey            string        `envconfig:"TEAMCART_STRIPE_API_KEY"`
	Secret            string        `envconfig:"TEAMCART_STRIPE_SECRET"`
	Env               string        `envconfig:"TEAMCART_STRIPE_ENV" default:"test"`
	HTTPTimeout       time.Duration `envconfig:"TEAMCART_STRIPE_HTTP_TIMEOUT" default:"20s"`
	MaxNetworkRetries int64         `envconfig:"TEAMCART_STRIPE_MAX_NETWORK_RETRIES" default:"1"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
