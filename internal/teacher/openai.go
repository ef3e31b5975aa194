package teacher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/query"
	"golang.org/x/time/rate"
)

// openAIProvider calls any endpoint implementing the OpenAI chat-completion
// contract.
type openAIProvider struct {
	endpoint    string
	model       string
	apiKey      config.Secret
	temperature float64
	topP        float64
	maxTokens   int
	httpClient  *http.Client
	limiter     *rate.Limiter
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func newOpenAIProvider(cfg config.TeacherConfig) (*openAIProvider, error) {
	apiKey := config.Secret(os.Getenv(cfg.APIKeyEnv))
	if !apiKey.IsSet() {
		return nil, &config.ConfigError{
			Field:  "teacher.api_key_env",
			Reason: fmt.Sprintf("environment variable %s is empty", cfg.APIKeyEnv),
		}
	}

	return &openAIProvider{
		endpoint:    cfg.EndpointURL,
		model:       cfg.ModelName,
		apiKey:      apiKey,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxOutputTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout.Duration()},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateBurst),
	}, nil
}

func (p *openAIProvider) Name() string {
	return config.ProviderOpenAICompatible
}

// Generate issues one chat-completion call. Rate limiting happens here so
// retries also pace themselves against the provider quota.
func (p *openAIProvider) Generate(ctx context.Context, q query.SyntheticQuery) (*Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: q.PromptText},
		},
		Temperature: p.temperature,
		TopP:        p.topP,
		MaxTokens:   p.maxTokens,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey.Value())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and connection resets are worth retrying.
		return nil, Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, Transient(fmt.Errorf("rate limited (429)"))
	}
	if resp.StatusCode >= 500 {
		return nil, Transient(fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		// Auth, quota, and bad-request errors will not heal on retry.
		var errResp chatError
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, Transient(fmt.Errorf("response has no choices"))
	}
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if content == "" {
		return nil, Transient(fmt.Errorf("response content is empty"))
	}

	return &Result{
		Text:           content,
		RequestPayload: jsonData,
		RawResponse:    json.RawMessage(body),
	}, nil
}
