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

const defaultLocalBaseURL = "http://localhost:11434"

// Local talks to an Ollama-compatible local inference server. No credential
// is sent.
type Local struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func NewLocal(cfg Config) *Local {
	base := cfg.BaseURL
	if base == "" {
		base = defaultLocalBaseURL
	}
	return &Local{
		baseURL: strings.TrimRight(base, "/"),
		timeout: cfg.timeout(),
		client:  cfg.httpClient(),
	}
}

func (a *Local) Provider() string { return "local" }

type localRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	System  string `json:"system,omitempty"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type localResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	EvalCount int    `json:"eval_count"`
	Error     string `json:"error"`
}

func (a *Local) Execute(ctx context.Context, prompt string, params Params) (*Response, error) {
	reqBody := localRequest{
		Model:  params.Model,
		Prompt: prompt,
		System: params.SystemPrompt,
		Stream: false,
	}
	reqBody.Options.Temperature = params.Temperature
	reqBody.Options.NumPredict = params.MaxTokens

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
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

	var parsed localResponse
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
			msg = parsed.Error
		}
		return nil, statusError("local", resp.StatusCode, "", msg, resp.Header)
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProviderError{Provider: "local", StatusCode: resp.StatusCode, Code: "malformed_response", Message: err.Error()}
	}

	return &Response{
		Text:         parsed.Response,
		Model:        parsed.Model,
		OutputTokens: parsed.EvalCount,
		Latency:      latency,
	}, nil
}
