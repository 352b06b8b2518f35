package config

const EnvPrefix = "EDUTRACK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	MidtransSandbox    = "sandbox"
	MidtransProduction = "production"
)

const (
	EnvAppEnv         = "EDUTRACK_APP_ENV"
	EnvPort           = "EDUTRACK_APP_PORT"
	EnvBranchCode     = "EDUTRACK_BRANCH_CODE"
	EnvBusinessTZ     = "EDUTRACK_BUSINESS_TZ"
	EnvDBDSN          = "EDUTRACK_DB_DSN"
	EnvDBHost         = "EDUTRACK_DB_HOST"
	EnvDBUser         = "EDUTRACK_DB_USER"
	EnvDBName         = "EDUTRACK_DB_NAME"
	EnvRedisURL       = "EDUTRACK_REDIS_URL"
	EnvJWTSecret      = "EDUTRACK_JWT_SECRET"
	EnvJWTIssuer      = "EDUTRACK_JWT_ISSUER"
	EnvMidtransKey    = "EDUTRACK_MIDTRANS_SERVER_KEY"
	EnvMidtransEnv    = "EDUTRACK_MIDTRANS_ENV"
	EnvTaxRatePercent = "EDUTRACK_CHECKOUT_TAX_RATE_PERCENT"
	EnvOrderTTL       = "EDUTRACK_CHECKOUT_ORDER_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
