package config

// EnvPrefix is handed to envconfig; every field below carries its full name.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "STOREFRONT_APP_ENV"
	EnvPort         = "STOREFRONT_APP_PORT"
	EnvLogLevel     = "STOREFRONT_LOG_LEVEL"
	EnvLogWarnStack = "STOREFRONT_LOG_WARN_STACK"
	EnvCORSOrigins  = "STOREFRONT_CORS_ORIGINS"

	EnvDBDSN       = "STOREFRONT_DB_DSN"
	EnvDBHost      = "STOREFRONT_DB_HOST"
	EnvDBPort      = "STOREFRONT_DB_PORT"
	EnvDBUser      = "STOREFRONT_DB_USER"
	EnvDBPassword  = "STOREFRONT_DB_PASSWORD"
	EnvDBName      = "STOREFRONT_DB_NAME"
	EnvDBSSLMode   = "STOREFRONT_DB_SSLMODE"
	EnvDBSlowQuery = "STOREFRONT_DB_SLOW_QUERY"

	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvRedisAddr = "STOREFRONT_REDIS_ADDR"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvCartLockTTL          = "STOREFRONT_CART_LOCK_TTL"
	EnvCartLockWait         = "STOREFRONT_CART_LOCK_WAIT"
	EnvPricingItemTimeout   = "STOREFRONT_PRICING_ITEM_TIMEOUT"
	EnvPricingConcurrency   = "STOREFRONT_PRICING_CONCURRENCY"
	EnvCheckoutClearRetries = "STOREFRONT_CHECKOUT_CLEAR_RETRIES"
	EnvGuestCartTTL         = "STOREFRONT_GUEST_CART_TTL"

	EnvAuthLoginWindow        = "STOREFRONT_AUTH_LOGIN_WINDOW"
	EnvAuthLoginIPLimit       = "STOREFRONT_AUTH_LOGIN_IP_LIMIT"
	EnvAuthLoginEmailLimit    = "STOREFRONT_AUTH_LOGIN_EMAIL_LIMIT"
	EnvAuthLoginOwnerLimit    = "STOREFRONT_AUTH_LOGIN_OWNER_LIMIT"
	EnvAuthRegisterWindow     = "STOREFRONT_AUTH_REGISTER_WINDOW"
	EnvAuthRegisterIPLimit    = "STOREFRONT_AUTH_REGISTER_IP_LIMIT"
	EnvAuthRegisterEmailLimit = "STOREFRONT_AUTH_REGISTER_EMAIL_LIMIT"
	EnvAuthRegisterOwnerLimit = "STOREFRONT_AUTH_REGISTER_OWNER_LIMIT"

	EnvEventingTransport = "STOREFRONT_EVENTING_TRANSPORT"

	EnvGCPProjectID         = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic    = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub      = "STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubOutstanding    = "STOREFRONT_PUBSUB_MAX_OUTSTANDING"
	EnvKafkaBrokers         = "STOREFRONT_KAFKA_BROKERS"
	EnvKafkaOrdersTopic     = "STOREFRONT_KAFKA_ORDERS_TOPIC"
	EnvBigQueryDataset      = "STOREFRONT_BIGQUERY_DATASET"
	EnvBigQueryOrdersTable  = "STOREFRONT_BIGQUERY_ORDER_EVENTS_TABLE"
	EnvBigQueryMergesTable  = "STOREFRONT_BIGQUERY_CART_MERGES_TABLE"
	EnvBigQueryAttempts     = "STOREFRONT_BIGQUERY_INSERT_ATTEMPTS"
	EnvAutoMigrate          = "STOREFRONT_AUTO_MIGRATE"
	EnvCronInterval         = "STOREFRONT_CRON_INTERVAL"
	EnvCronLockTTL          = "STOREFRONT_CRON_LOCK_TTL"
	EnvOutboxBatchSize      = "STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxPollIntervalMS = "STOREFRONT_OUTBOX_PUBLISH_POLL_MS"
	EnvOutboxMaxAttempts    = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	EnvFulfillmentToken     = "STOREFRONT_FULFILLMENT_TOKEN"
)

const (
	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
