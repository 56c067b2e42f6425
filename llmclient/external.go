package llmclient

import (
	"context"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"go.uber.org/zap"

	"contract-analyzer/config"
	apperrors "contract-analyzer/errors"
)

// ExternalClient talks to an OpenAI-compatible chat completions API. The SDK's
// own retry machinery is disabled so that retry count, backoff, and error
// classification stay under our control.
type ExternalClient struct {
	api    openai.Client
	cfg    *config.Config
	logger *zap.Logger
}

func NewExternal(cfg *config.Config, logger *zap.Logger) (*ExternalClient, error) {
	if cfg.ExternalAPIKey == "" {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "EXTERNAL_API_KEY is required in external mode")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.ExternalAPIKey),
		option.WithMaxRetries(0),
	}
	if cfg.ExternalBaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.ExternalBaseURL))
	}

	return &ExternalClient{
		api:    openai.NewClient(reqOpts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (c *ExternalClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.LLMRequestTimeout
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       c.cfg.ExternalModel,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.api.Chat.Completions.New(callCtx, params)
		cancel()

		if err != nil {
			lastErr = err
			// Do not retry on caller cancellation or deadline.
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("External LLM request failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			backoffSleep(ctx, c.cfg, attempt)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = apperrors.WrapError(apperrors.ErrLLM, "no response choices")
			backoffSleep(ctx, c.cfg, attempt)
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}

	if ctx.Err() != nil {
		return "", apperrors.WrapError(ctx.Err(), "external llm request canceled")
	}
	return "", apperrors.WrapErrorf(apperrors.ErrLLM, "external llm request failed after %d attempts: %v", c.cfg.MaxRetries, lastErr)
}
