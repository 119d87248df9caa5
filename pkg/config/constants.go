package config

// EnvPrefix is the envconfig prefix shared by every service binary.
const EnvPrefix = "BAYMARKET"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv        = "BAYMARKET_APP_ENV"
	EnvPort          = "BAYMARKET_APP_PORT"
	EnvDBDSN         = "BAYMARKET_DB_DSN"
	EnvDBHost        = "BAYMARKET_DB_HOST"
	EnvDBUser        = "BAYMARKET_DB_USER"
	EnvDBName        = "BAYMARKET_DB_NAME"
	EnvRedisURL      = "BAYMARKET_REDIS_URL"
	EnvJWTSecret     = "BAYMARKET_JWT_SECRET"
	EnvJWTIssuer     = "BAYMARKET_JWT_ISSUER"
	EnvWebhookSecret = "BAYMARKET_PAYMENT_WEBHOOK_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
