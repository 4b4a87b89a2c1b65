package routineagent

import "github.com/routinebot/RoutineAgent/internal/feishusdk"

// Feishu credentials, re-exported so callers can depend on the root package
// only.
const (
	EnvFeishuAppID             = feishusdk.EnvAppID
	EnvFeishuAppSecret         = feishusdk.EnvAppSecret
	EnvFeishuBaseURL           = feishusdk.EnvBaseURL
	EnvFeishuVerificationToken = feishusdk.EnvVerificationToken
	EnvFeishuEncryptKey        = feishusdk.EnvEncryptKey
)

const (
	// EnvOpenAIAPIKey enables the weekly summarizer.
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvOpenAIModel   = "OPENAI_MODEL"

	// EnvAdminUserIDs lists the open ids allowed to rotate secrets.
	EnvAdminUserIDs = "ADMIN_USER_IDS"
	// EnvAdminSecretVars overrides the variables secret rotation may write.
	EnvAdminSecretVars = "ADMIN_SECRET_VARS"

	// EnvForceMonday runs the weekly pipeline at startup regardless of the
	// weekday.
	EnvForceMonday = "FORCE_MONDAY"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
)
