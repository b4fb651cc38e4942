package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/health-chat-api/internal/config"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

func TestSetupMetricsExposesChatMetrics(t *testing.T) {
	handler, chatMetrics := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, chatMetrics)

	chatMetrics.ObserveRequest("ROUTINE", 0.4)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthchat_chat_requests_total")
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestBuildHandlerMemoryStoreWithNova(t *testing.T) {
	cfg := &appconfig.Config{
		StoreBackend:   "memory",
		LLMProvider:    "nova",
		LLMMaxRetries:  1,
		NovaAPIKey:     "test-key",
		NovaAPIBaseURL: "http://127.0.0.1:1",
		NovaModelID:    "nova-2-pro-v1",
	}
	handler, cleanup, err := buildHandler(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer cleanup()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	// The provider is unreachable, so the answer degrades to the safe template.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"I have chest pain"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"risk_level":"EMERGENCY"`)
	assert.Contains(t, rr.Body.String(), `"degraded":true`)
}

func TestBuildHandlerRejectsBadConfig(t *testing.T) {
	_, _, err := buildHandler(context.Background(), &appconfig.Config{StoreBackend: "postgres"}, logging.Discard())
	assert.Error(t, err)

	_, _, err = buildHandler(context.Background(), &appconfig.Config{StoreBackend: "memory", LLMProvider: "unknown"}, logging.Discard())
	assert.Error(t, err)
}

func TestRedisConfigOnlyForRedisBackend(t *testing.T) {
	assert.Nil(t, redisConfig(&appconfig.Config{StoreBackend: "memory"}))
	cfg := &appconfig.Config{StoreBackend: "redis"}
	assert.Same(t, cfg, redisConfig(cfg))
}
