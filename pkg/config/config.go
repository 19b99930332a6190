package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Ingest        IngestConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	SMTP          SMTPConfig
	Cron          CronConfig
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
	Env          string `envconfig:"CRM_APP_ENV" required:"true"`
	Port         string `envconfig:"CRM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CRM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CRM_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"CRM_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

type ServiceConfig struct {
	Kind string `envconfig:"CRM_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CRM_DB_DSN"`
	Driver string `envconfig:"CRM_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CRM_DB_HOST"`
	LegacyPort     int    `envconfig:"CRM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CRM_DB_USER"`
	LegacyPassword string `envconfig:"CRM_DB_PASSWORD"`
	LegacyName     string `envconfig:"CRM_DB_NAME"`
	LegacySSLMode  string `envconfig:"CRM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CRM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CRM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CRM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CRM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CRM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CRM_REDIS_ADDR"`
	Password     string        `envconfig:"CRM_REDIS_PASSWORD"`
	DB           int           `envconfig:"CRM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CRM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CRM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CRM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CRM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CRM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"CRM_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"CRM_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"CRM_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"CRM_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CRM_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CRM_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CRM_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CRM_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CRM_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CRM_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"CRM_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CRM_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"CRM_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"CRM_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"CRM_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CRM_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CRM_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"CRM_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type IngestConfig struct {
	APIKey      string        `envconfig:"CRM_INGEST_API_KEY"`
	RateLimit   int           `envconfig:"CRM_INGEST_RATE_LIMIT" default:"120"`
	RateWindow  time.Duration `envconfig:"CRM_INGEST_RATE_WINDOW" default:"1m"`
	DefaultFrom string        `envconfig:"CRM_INGEST_DEFAULT_SOURCE" default:"External API"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CRM_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CRM_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CRM_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LeadEventsTopic       string `envconfig:"CRM_PUBSUB_LEAD_EVENTS_TOPIC" default:"crm-lead-events"`
	WarehouseSubscription string `envconfig:"CRM_PUBSUB_WAREHOUSE_SUBSCRIPTION" default:"crm-warehouse-sub"`
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"CRM_BIGQUERY_DATASET" default:"crm"`
	TimelineEventsTable string `envconfig:"CRM_BIGQUERY_TIMELINE_TABLE" default:"timeline_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CRM_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CRM_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CRM_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"CRM_OUTBOX_RETENTION_DAYS" default:"30"`
}

type SMTPConfig struct {
	Host     string `envconfig:"CRM_SMTP_HOST"`
	Port     int    `envconfig:"CRM_SMTP_PORT" default:"587"`
	User     string `envconfig:"CRM_SMTP_USER"`
	Password string `envconfig:"CRM_SMTP_PASSWORD"`
	From     string `envconfig:"CRM_SMTP_FROM" default:"no-reply@crm.local"`
}

// Enabled reports whether an SMTP relay is configured.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"CRM_CRON_INTERVAL" default:"1h"`
	FollowUpLookahead time.Duration `envconfig:"CRM_FOLLOWUP_LOOKAHEAD" default:"24h"`
	StaleLeadDays     int           `envconfig:"CRM_STALE_LEAD_DAYS" default:"30"`
	StaleLeadBatch    int           `envconfig:"CRM_STALE_LEAD_BATCH" default:"200"`
	TimeZone          string        `envconfig:"CRM_TIMEZONE" default:"America/Sao_Paulo"`
}

// Location resolves TimeZone for user-facing dates, falling back to UTC.
func (c CronConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
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
