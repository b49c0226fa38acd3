package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/chattask/internal/model"
)

func TestAnthropicComplete(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"{\"intent\":"},{"type":"text","text":"\"help\"}"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropic("secret", "", 0).WithURL(srv.URL)
	out, err := c.Complete(context.Background(), "be terse", "hi")
	require.NoError(t, err)

	assert.Equal(t, `{"intent":"help"}`, out)
	assert.Equal(t, defaultAnthropicModel, got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.Equal(t, "be terse", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content[0].Text)
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropic("k", "m", 10).WithURL(srv.URL).Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
	assert.Contains(t, err.Error(), "429")
}

func TestNewProviders(t *testing.T) {
	c, err := New(context.Background(), model.LLMConfig{}, "")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(context.Background(), model.LLMConfig{Provider: "anthropic"}, "k")
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, c)

	_, err = New(context.Background(), model.LLMConfig{Provider: "gemini"}, "")
	assert.Error(t, err)

	_, err = New(context.Background(), model.LLMConfig{Provider: "mistral"}, "k")
	assert.Error(t, err)
}
