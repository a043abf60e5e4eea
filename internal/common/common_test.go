package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewViperLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pdf-analyzer.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: 3500\nocr_backend: Tesseract\nocr_languages: eng+deu\ncache_ttl: 1h\n"), 0o644))
	t.Setenv("PORT", "4000")
	t.Setenv("GEMINI_API_KEY", "secret")

	v, err := NewViper(file)
	require.NoError(t, err)
	cfg := FromViper(v)

	assert.Equal(t, 4000, cfg.Server.Port, "env wins over file")
	assert.Equal(t, "tesseract", cfg.OCR.Backend)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCR.Languages)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, 3, cfg.OCR.Concurrency)
	assert.Equal(t, 150, cfg.Pipeline.TextThreshold)
	assert.InDelta(t, 0.1, float64(cfg.LLM.Temperature), 1e-6)
}

func TestNewViperMissingExplicitFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, "CONFIG_ERROR", Code(err))
}

func validConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	v.Set("llm_api_key", "k")
	v.Set("tesseract_api_url", "http://ocr.local/recognize")
	return FromViper(v)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults with key and url", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.LLM.APIKey = "" }, wantErr: "LLM_API_KEY"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "bard" }, wantErr: "LLM_PROVIDER"},
		{name: "http backend without url", mutate: func(c *Config) { c.OCR.APIURL = "" }, wantErr: "TESSERACT_API_URL"},
		{name: "tesseract backend needs no url", mutate: func(c *Config) { c.OCR.Backend = "tesseract"; c.OCR.APIURL = "" }},
		{name: "zero concurrency", mutate: func(c *Config) { c.OCR.Concurrency = 0 }, wantErr: "CONCURRENT_OCR"},
		{name: "redis without dsn", mutate: func(c *Config) { c.Cache.Backend = "redis" }, wantErr: "CACHE_DSN"},
		{name: "sqlite uses default path", mutate: func(c *Config) { c.Cache.Backend = "sqlite" }},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: "CACHE_BACKEND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", NewValidationError("Rules are required"), CodeValidation, http.StatusBadRequest},
		{"wrapped invalid input", fmt.Errorf("ctx: %w", ErrInvalidInput), CodeValidation, http.StatusBadRequest},
		{"not found", NewAppError(CodeNotFound, "Analysis not found", ErrNotFound), CodeNotFound, http.StatusNotFound},
		{"too large", NewAppError(CodePayloadTooLarge, "too big", ErrPayloadTooLarge), CodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"duplicate", NewAppError(CodeDuplicateJob, "dup", ErrDuplicateJob), CodeDuplicateJob, http.StatusConflict},
		{"upstream", NewUpstreamError("ocr", errors.New("503")), CodeUpstream, http.StatusBadGateway},
		{"deadline becomes timeout", NewUpstreamError("llm", context.DeadlineExceeded), CodeUpstreamTimeout, http.StatusGatewayTimeout},
		{"cancellation is not a timeout", NewUpstreamError("llm", context.Canceled), CodeCanceled, http.StatusServiceUnavailable},
		{"bare context.Canceled", fmt.Errorf("page 2: %w", context.Canceled), CodeCanceled, http.StatusServiceUnavailable},
		{"context error on deadline", NewContextError("recognition", context.DeadlineExceeded), CodeUpstreamTimeout, http.StatusGatewayTimeout},
		{"context error on cancel", NewContextError("recognition", context.Canceled), CodeCanceled, http.StatusServiceUnavailable},
		{"malformed verdict", NewMalformedVerdict("no json", nil), CodeMalformedVerdict, http.StatusBadGateway},
		{"bare error", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestUpstreamTimeoutKeepsCause(t *testing.T) {
	err := NewUpstreamError("ocr", fmt.Errorf("page 3: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "ocr request timed out", UserMessage(err))
}

func TestContextValues(t *testing.T) {
	ctx := WithJobID(WithRequestID(context.Background(), "req-1"), "job-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "job-1", JobIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.NotNil(t, LoggerFromContext(context.Background(), nil))
}
