package feishusdk

// Environment variables read by NewClientFromEnv.
const (
	EnvAppID             = "FEISHU_APP_ID"
	EnvAppSecret         = "FEISHU_APP_SECRET"
	EnvBaseURL           = "FEISHU_BASE_URL"
	EnvVerificationToken = "FEISHU_VERIFICATION_TOKEN"
	EnvEncryptKey        = "FEISHU_ENCRYPT_KEY"
)

// Receive id types accepted by the message APIs.
const (
	ReceiveIDOpenID = "open_id"
	ReceiveIDChatID = "chat_id"
	ReceiveIDUserID = "user_id"
)

// Message types sent by the bot.
const (
	MsgTypeText        = "text"
	MsgTypeInteractive = "interactive"
)

const (
	defaultBaseURL = "https://open.feishu.cn"
)
