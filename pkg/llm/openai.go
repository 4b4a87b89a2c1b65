package llm

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config configures the OpenAI client.
type Config struct {
	APIKey     string
	// KeySource is read on every call and wins over APIKey, so a key rotated
	// into the environment applies without rebuilding the client.
	KeySource  func() string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	SchemaName string
	MaxRetries int
}

// OpenAI implements Summarizer with the chat completions API and a strict
// json_schema response format.
type OpenAI struct {
	client     openai.Client
	key        func() string
	model      string
	timeout    time.Duration
	schemaName string
}

// NewOpenAI returns ErrNotConfigured when neither an API key nor a key source
// is set.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	key := cfg.KeySource
	if key == nil {
		static := strings.TrimSpace(cfg.APIKey)
		if static == "" {
			return nil, ErrNotConfigured
		}
		key = func() string { return static }
	}
	var opts []option.RequestOption
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	name := cfg.SchemaName
	if name == "" {
		name = "structured_result"
	}
	return &OpenAI{
		client:     openai.NewClient(opts...),
		key:        key,
		model:      model,
		timeout:    cfg.Timeout,
		schemaName: name,
	}, nil
}

// StructuredCall returns ErrNotConfigured while the key source is empty.
func (o *OpenAI) StructuredCall(ctx context.Context, prompt string, schema map[string]any, system string, temperature float64) (map[string]any, error) {
	apiKey := strings.TrimSpace(o.key())
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(temperature),
	}
	if schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   o.schemaName,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "llm: chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: chat completion returned no choices")
	}
	log.Debug().
		Str("model", o.model).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Dur("elapsed", time.Since(start)).
		Msg("llm: structured call finished")
	return ParseObject(resp.Choices[0].Message.Content)
}
