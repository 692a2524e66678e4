// Package advisory calls a hosted language model for reschedule suggestions.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	defaultOpenAIURL    = "https://api.openai.com/v1"
	defaultAnthropicURL = "https://api.anthropic.com/v1"
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultClaudeModel  = "claude-3-5-haiku-latest"
	anthropicVersion    = "2023-06-01"
	maxTokens           = 2048
	maxResponseBytes    = 1 << 20
)

// ErrNoJSON means the model answered without a JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

const systemPrompt = `You reschedule the rest of a person's work day.
Answer with a single JSON object and nothing else:
{"scheduledTasks":[{"taskId":"...","start":"RFC3339","end":"RFC3339","adjustedMinutes":0,"reason":"..."}],
 "skippedTaskIds":["..."],"overallReasoning":"..."}
Rules: use only the given task ids; every window lies between earliestStart and latestEnd;
windows do not overlap and leave bufferBetweenMinutes between them; end minus start equals
adjustedMinutes; the sum of adjustedMinutes stays within availableMinutes; never skip a
protected task while a lower priority task is kept; pad estimates with historicalBuffer.`

// Config selects the provider and model.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the provider endpoint, e.g. for a proxy.
	BaseURL string
	Timeout time.Duration
}

// Client implements services.Advisor over the provider's HTTP API.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient validates cfg and fills provider defaults. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("advisory API key is required")
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOpenAIURL
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	case ProviderAnthropic:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultAnthropicURL
		}
		if cfg.Model == "" {
			cfg.Model = defaultClaudeModel
		}
	default:
		return nil, fmt.Errorf("unsupported advisory provider %q", cfg.Provider)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, client: httpClient}, nil
}

// Suggest asks the model for a schedule and decodes its answer strictly.
// Checking the answer against the plan is left to the caller.
func (c *Client) Suggest(ctx context.Context, req services.AdvisoryRequest) (*services.AdvisoryResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal advisory request: %w", err)
	}

	var text string
	switch c.cfg.Provider {
	case ProviderAnthropic:
		text, err = c.callAnthropic(ctx, string(payload))
	default:
		text, err = c.callOpenAI(ctx, string(payload))
	}
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var resp services.AdvisoryResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidAdvisory, err)
	}
	return &resp, nil
}

func (c *Client) callOpenAI(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"max_tokens":      maxTokens,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, c.cfg.BaseURL+"/chat/completions", headers, body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", ErrNoJSON
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) callAnthropic(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": maxTokens,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.post(ctx, c.cfg.BaseURL+"/messages", headers, body, &result); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("advisory call failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("advisory API returned status %d: %s", httpResp.StatusCode, truncate(string(respBody), 200))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// extractJSON returns the first balanced JSON object in text. Models wrap
// answers in prose or code fences often enough to make this necessary.
func extractJSON(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, ErrNoJSON
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
