package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
)

func TestClient_CheckRules(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"status\":"},{"text":"\"pass\"}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "secret", BaseURL: srv.URL, Temperature: 0.1, TopP: 0.8}, nil)
	out, err := c.CheckRules(context.Background(), llm.CheckRequest{Text: "doc", Rules: []string{"rule"}})
	require.NoError(t, err)
	assert.Equal(t, `{"status":"pass"}`, out)

	cfg := got["generationConfig"].(map[string]any)
	assert.InDelta(t, 0.1, cfg["temperature"], 0.0001)
	assert.InDelta(t, 0.8, cfg["topP"], 0.0001)
	assert.EqualValues(t, 512, cfg["maxOutputTokens"])
	assert.Equal(t, "application/json", cfg["responseMimeType"])
	assert.Contains(t, got, "systemInstruction")
}

func TestClient_CheckRulesErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		want    error
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "quota", http.StatusTooManyRequests)
			},
			want: common.ErrUpstream,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			want: common.ErrUpstream,
		},
		{
			name: "blocked prompt",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
			},
			want: common.ErrUpstream,
		},
		{
			name: "deadline",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			},
			timeout: 20 * time.Millisecond,
			want:    common.ErrUpstreamTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: tt.timeout}, nil)
			_, err := c.CheckRules(context.Background(), llm.CheckRequest{Text: "doc", Rules: []string{"a", "b"}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
