package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failproof/stressor/internal/tracing"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// Anthropic talks to the messages endpoint.
type Anthropic struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func NewAnthropic(cfg Config) *Anthropic {
	base := cfg.BaseURL
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	return &Anthropic{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.timeout(),
		client:  cfg.httpClient(),
	}
}

func (a *Anthropic) Provider() string { return "anthropic" }

type anthropicRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    string `json:"system,omitempty"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Anthropic) Execute(ctx context.Context, prompt string, params Params) (*Response, error) {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	reqBody := anthropicRequest{
		Model:       params.Model,
		MaxTokens:   maxTokens,
		System:      params.SystemPrompt,
		Temperature: params.Temperature,
	}
	reqBody.Messages = append(reqBody.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: prompt})

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	tracing.InjectHTTPHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, translateError(err, a.timeout)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, translateError(err, a.timeout)
	}
	latency := time.Since(start)

	var parsed anthropicResponse
	if resp.StatusCode != http.StatusOK {
		code, msg := "", string(raw)
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			code, msg = parsed.Error.Type, parsed.Error.Message
		}
		return nil, statusError("anthropic", resp.StatusCode, code, msg, resp.Header)
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProviderError{Provider: "anthropic", StatusCode: resp.StatusCode, Code: "malformed_response", Message: err.Error()}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &ProviderError{Provider: "anthropic", StatusCode: resp.StatusCode, Code: "empty_response", Message: "no text content returned"}
	}

	return &Response{
		Text:         text.String(),
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		Latency:      latency,
	}, nil
}
