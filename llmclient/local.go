package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"contract-analyzer/config"
	apperrors "contract-analyzer/errors"
)

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// LocalClient talks to an Ollama-compatible server over its /api/generate
// endpoint. A 503 means the model is still loading and is retried with
// backoff.
type LocalClient struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewLocal(cfg *config.Config, logger *zap.Logger) *LocalClient {
	// Deadlines come from per-request contexts, not the transport.
	return &LocalClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (c *LocalClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.LocalLLMTimeout
	}

	reqBody := generateRequest{
		Model:  c.cfg.LocalModel,
		Prompt: prompt,
		System: opts.SystemPrompt,
		Stream: false,
		Options: generateOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}
	if opts.JSONMode {
		reqBody.Format = "json"
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", strings.TrimRight(c.cfg.LocalLLMHost, "/"))

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		text, err := c.doRequest(callCtx, url, jsonBody)
		cancel()

		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("Local LLM request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		backoffSleep(ctx, c.cfg, attempt)
	}

	if ctx.Err() != nil {
		return "", apperrors.WrapError(ctx.Err(), "local llm request canceled")
	}
	return "", apperrors.WrapErrorf(apperrors.ErrLLM, "local llm request failed after %d attempts: %v", c.cfg.MaxRetries, lastErr)
}

func (c *LocalClient) doRequest(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("llm server loading model (503)")
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm server status %s", resp.Status)
	}

	var gr generateResponse
	if err := json.Unmarshal(bodyBytes, &gr); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return gr.Response, nil
}
