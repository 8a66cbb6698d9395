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

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI talks to the chat completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func NewOpenAI(cfg Config) *OpenAI {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return &OpenAI{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.timeout(),
		client:  cfg.httpClient(),
	}
}

func (a *OpenAI) Provider() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *OpenAI) Execute(ctx context.Context, prompt string, params Params) (*Response, error) {
	msgs := make([]openAIMessage, 0, 2)
	if params.SystemPrompt != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: params.SystemPrompt})
	}
	msgs = append(msgs, openAIMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(openAIRequest{
		Model:       params.Model,
		Messages:    msgs,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
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

	var parsed openAIResponse
	if resp.StatusCode != http.StatusOK {
		code, msg := "", string(raw)
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			code, msg = parsed.Error.Type, parsed.Error.Message
		}
		return nil, statusError("openai", resp.StatusCode, code, msg, resp.Header)
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProviderError{Provider: "openai", StatusCode: resp.StatusCode, Code: "malformed_response", Message: err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", StatusCode: resp.StatusCode, Code: "empty_response", Message: "no choices returned"}
	}

	return &Response{
		Text:         parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		Latency:      latency,
	}, nil
}
