package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retail-chat-workers/internal/common/config"
	commonhttp "retail-chat-workers/internal/common/http"
)

const generatePath = "/api/ai/generate"

// HTTPClient calls the in-house GenAI gateway.
type HTTPClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *commonhttp.Client
}

func NewHTTPClient(cfg config.GenAIConfig) *HTTPClient {
	timeout := config.GetDuration(cfg.Timeout)
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client:  commonhttp.NewClient(timeout, commonhttp.WithRetries(cfg.MaxRetries)),
	}
}

type generateRequest struct {
	System         string  `json:"system,omitempty"`
	Prompt         string  `json:"prompt"`
	Temperature    float32 `json:"temperature"`
	MaxTokens      int     `json:"maxTokens,omitempty"`
	ResponseFormat string  `json:"responseFormat,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (c *HTTPClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body := generateRequest{
		System:      req.System,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		body.ResponseFormat = "json"
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp generateResponse
	if err := c.client.PostJSON(ctx, c.baseURL+generatePath, headers, body, &resp); err != nil {
		if errors.Is(err, commonhttp.ErrTimeout) {
			return "", ErrLLMTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	if strings.TrimSpace(resp.Text) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Text, nil
}
