package feishusdk

import (
	"context"
	"errors"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/routinebot/RoutineAgent/internal/env"
)

type messageAPI interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
	Reply(ctx context.Context, req *larkim.ReplyMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.ReplyMessageResp, error)
	Patch(ctx context.Context, req *larkim.PatchMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.PatchMessageResp, error)
}

// Client wraps the Feishu IM APIs used by the bot.
type Client struct {
	appID             string
	appSecret         string
	baseURL           string
	verificationToken string
	encryptKey        string

	larkClient *lark.Client
	messages   messageAPI
}

// NewClientFromEnv constructs a Client using environment variables.
//
// Required variables:
//   - FEISHU_APP_ID
//   - FEISHU_APP_SECRET
//
// Optional variables:
//   - FEISHU_BASE_URL (defaults to https://open.feishu.cn)
//   - FEISHU_VERIFICATION_TOKEN, FEISHU_ENCRYPT_KEY (event decryption)
func NewClientFromEnv() (*Client, error) {
	appID := env.String(EnvAppID, "")
	appSecret := env.String(EnvAppSecret, "")
	if appID == "" || appSecret == "" {
		return nil, errors.New("feishu: FEISHU_APP_ID and FEISHU_APP_SECRET must be set in environment")
	}
	return NewClient(appID, appSecret, env.String(EnvBaseURL, ""),
		env.String(EnvVerificationToken, ""), env.String(EnvEncryptKey, "")), nil
}

// NewClient constructs a Client from explicit credentials.
func NewClient(appID, appSecret, baseURL, verificationToken, encryptKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelError),
	}
	if baseURL != lark.FeishuBaseUrl {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	client := lark.NewClient(appID, appSecret, opts...)
	return &Client{
		appID:             appID,
		appSecret:         appSecret,
		baseURL:           baseURL,
		verificationToken: verificationToken,
		encryptKey:        encryptKey,
		larkClient:        client,
		messages:          client.Im.V1.Message,
	}
}

// AppID returns the configured app id.
func (c *Client) AppID() string {
	if c == nil {
		return ""
	}
	return c.appID
}

func (c *Client) messageService() (messageAPI, error) {
	if c == nil {
		return nil, errors.New("feishu: client is nil")
	}
	if c.messages != nil {
		return c.messages, nil
	}
	if c.larkClient == nil {
		return nil, errors.New("feishu: im sdk client is nil")
	}
	return c.larkClient.Im.V1.Message, nil
}
