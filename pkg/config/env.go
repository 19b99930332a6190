package config

const (
	EnvPrefix = "CRM"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names that are referenced outside of struct tags.
const (
	EnvAppEnv   = "CRM_APP_ENV"
	EnvPort     = "CRM_APP_PORT"
	EnvLogLevel = "CRM_LOG_LEVEL"

	EnvDBDSN  = "CRM_DB_DSN"
	EnvDBHost = "CRM_DB_HOST"
	EnvDBUser = "CRM_DB_USER"
	EnvDBName = "CRM_DB_NAME"

	EnvRedisURL = "CRM_REDIS_URL"

	EnvJWTSecret              = "CRM_JWT_SECRET"
	EnvJWTIssuer              = "CRM_JWT_ISSUER"
	EnvJWTExpMins             = "CRM_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "CRM_REFRESH_TOKEN_TTL_MINUTES"

	EnvIngestAPIKey = "CRM_INGEST_API_KEY"

	EnvGCPProjectID           = "CRM_GCP_PROJECT_ID"
	EnvPubSubLeadEventsTopic  = "CRM_PUBSUB_LEAD_EVENTS_TOPIC"
	EnvPubSubWarehouseSub     = "CRM_PUBSUB_WAREHOUSE_SUBSCRIPTION"
	EnvBigQueryTimelineTable  = "CRM_BIGQUERY_TIMELINE_TABLE"
	EnvCronInterval           = "CRM_CRON_INTERVAL"
	EnvCronFollowUpLookahead  = "CRM_FOLLOWUP_LOOKAHEAD"
	EnvSMTPHost               = "CRM_SMTP_HOST"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
