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
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Cart          CartConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Kafka         KafkaConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Fulfillment   FulfillmentConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" default:"3001"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"STOREFRONT_DB_DSN"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured at all.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"1440"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOREFRONT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOREFRONT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOREFRONT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOREFRONT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOREFRONT_ARGON_KEY_LEN" default:"32"`
}

type CartConfig struct {
	LockTTL            time.Duration `envconfig:"STOREFRONT_CART_LOCK_TTL" default:"10s"`
	LockWait           time.Duration `envconfig:"STOREFRONT_CART_LOCK_WAIT" default:"5s"`
	PricingItemTimeout time.Duration `envconfig:"STOREFRONT_PRICING_ITEM_TIMEOUT" default:"2s"`
	PricingConcurrency int           `envconfig:"STOREFRONT_PRICING_CONCURRENCY" default:"8"`
	ClearRetries       int           `envconfig:"STOREFRONT_CHECKOUT_CLEAR_RETRIES" default:"3"`
	GuestCartTTL       time.Duration `envconfig:"STOREFRONT_GUEST_CART_TTL" default:"720h"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"STOREFRONT_AUTH_LOGIN_WINDOW" default:"15m"`
	LoginIPLimit       int           `envconfig:"STOREFRONT_AUTH_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"STOREFRONT_AUTH_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginOwnerLimit    int           `envconfig:"STOREFRONT_AUTH_LOGIN_OWNER_LIMIT" default:"10"`
	RegisterWindow     time.Duration `envconfig:"STOREFRONT_AUTH_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"STOREFRONT_AUTH_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"STOREFRONT_AUTH_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterOwnerLimit int           `envconfig:"STOREFRONT_AUTH_REGISTER_OWNER_LIMIT" default:"5"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	Transport      string        `envconfig:"STOREFRONT_EVENTING_TRANSPORT" default:"pubsub"`
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Transport)) {
	case TransportPubSub, TransportKafka:
		return nil
	}
	return fmt.Errorf("%s must be %q or %q, got %q", EnvEventingTransport, TransportPubSub, TransportKafka, e.Transport)
}

// UsesKafka reports whether events are published to Kafka instead of Pub/Sub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Transport), TransportKafka)
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-orders"`
	OrdersSubscription string `envconfig:"STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION" default:"storefront-orders-analytics"`
	MaxOutstanding     int    `envconfig:"STOREFRONT_PUBSUB_MAX_OUTSTANDING" default:"100"`
}

type KafkaConfig struct {
	Brokers     []string `envconfig:"STOREFRONT_KAFKA_BROKERS"`
	OrdersTopic string   `envconfig:"STOREFRONT_KAFKA_ORDERS_TOPIC" default:"storefront.orders"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"STOREFRONT_BIGQUERY_DATASET" default:"storefront"`
	OrderEventsTable string `envconfig:"STOREFRONT_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
	CartMergesTable  string `envconfig:"STOREFRONT_BIGQUERY_CART_MERGES_TABLE" default:"cart_merges"`
	InsertAttempts   int    `envconfig:"STOREFRONT_BIGQUERY_INSERT_ATTEMPTS" default:"3"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention time.Duration `envconfig:"STOREFRONT_OUTBOX_RETENTION" default:"168h"`
}

// FulfillmentConfig guards the internal order status route. The route is
// not mounted while Token is empty.
type FulfillmentConfig struct {
	Token string `envconfig:"STOREFRONT_FULFILLMENT_TOKEN"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range legacyDBEnvVars {
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
