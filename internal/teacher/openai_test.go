package teacher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAITestProvider(t *testing.T, url string) *openAIProvider {
	t.Helper()
	t.Setenv("DISTILL_TEST_API_KEY", "sk-test")
	p, err := newOpenAIProvider(config.TeacherConfig{
		Provider:        config.ProviderOpenAICompatible,
		EndpointURL:     url,
		ModelName:       "teacher-gpt",
		APIKeyEnv:       "DISTILL_TEST_API_KEY",
		Timeout:         config.Duration(5 * time.Second),
		Temperature:     0.2,
		TopP:            1.0,
		MaxOutputTokens: 512,
		RateLimitPerSec: 1000,
		RateBurst:       1000,
	})
	require.NoError(t, err)
	return p
}

func TestOpenAIProviderSuccess(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  A safe structured plan.  "}},
			},
		})
	}))
	defer srv.Close()

	p := openAITestProvider(t, srv.URL)
	res, err := p.Generate(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, "A safe structured plan.", res.Text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "teacher-gpt", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "Create a weekly plan.", gotBody.Messages[1].Content)
}

func TestOpenAIProviderErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
	}{
		{"server error", http.StatusInternalServerError, `boom`, true},
		{"bad gateway", http.StatusBadGateway, `upstream`, true},
		{"rate limited", http.StatusTooManyRequests, `slow down`, true},
		{"auth failure", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, false},
		{"quota", http.StatusForbidden, `{"error":{"message":"quota exhausted","type":"quota"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := openAITestProvider(t, srv.URL)
			_, err := p.Generate(context.Background(), testQuery())
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, IsTransient(err), "error: %v", err)
		})
	}
}

func TestOpenAIProviderEmptyContentIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": ""}}},
		})
	}))
	defer srv.Close()

	p := openAITestProvider(t, srv.URL)
	_, err := p.Generate(context.Background(), testQuery())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestOpenAIProviderNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	p := openAITestProvider(t, srv.URL)
	_, err := p.Generate(context.Background(), testQuery())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClientRetriesAgainstFlakyServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": goodResponse}}},
		})
	}))
	defer srv.Close()

	p := openAITestProvider(t, srv.URL)
	cfg := config.TeacherConfig{
		Provider:    config.ProviderOpenAICompatible,
		ModelName:   "teacher-gpt",
		MaxRetries:  2,
		BackoffBase: config.Duration(time.Millisecond),
		Workers:     1,
	}
	c := newClientWith(p, cfg, config.Acceptance{MinResponseLen: 40, MaxResponseLen: 4000}, nil)

	rec := c.Invoke(context.Background(), testQuery(), "run-1")
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, 3, rec.AttemptCount)
	assert.Equal(t, int32(3), calls.Load())
}
