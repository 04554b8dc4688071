package config

const EnvPrefix = "TEAMCART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	AllocationProportional = "proportional"
	AllocationEqualBase    = "equal_base"
)

const (
	EnvAppEnv             = "TEAMCART_APP_ENV"
	EnvPort               = "TEAMCART_APP_PORT"
	EnvDBDSN              = "TEAMCART_DB_DSN"
	EnvDBHost             = "TEAMCART_DB_HOST"
	EnvDBUser             = "TEAMCART_DB_USER"
	EnvDBName             = "TEAMCART_DB_NAME"
	EnvUseSQLite          = "TEAMCART_USE_SQLITE"
	EnvRedisURL           = "TEAMCART_REDIS_URL"
	EnvJWTSecret          = "TEAMCART_JWT_SECRET"
	EnvShareTokenSecret   = "TEAMCART_SHARE_TOKEN_SECRET"
	EnvShareTokenTTL      = "TEAMCART_SHARE_TOKEN_TTL"
	EnvAllocationStrategy = "TEAMCART_ALLOCATION_STRATEGY"
	EnvCurrency           = "TEAMCART_CURRENCY"
	EnvGatewayTimeout     = "TEAMCART_PAYMENT_GATEWAY_TIMEOUT"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
