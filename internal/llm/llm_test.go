package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/wasmverify/internal/config"
	"github.com/NielsdaWheelz/wasmverify/internal/plan"
)

const extraction = `{"build_commands":["./ci/container/build-ic.sh -c"]}`

func TestOpenAI_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": extraction}}},
		})
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", srv.URL+"/v1/", "gpt-4o-mini")
	out, err := c.Complete(context.Background(), plan.Request{
		System: "sys", Prompt: "user", MaxTokens: 256, Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, extraction, out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 256, got["max_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL+"/v1", "m").Complete(context.Background(), plan.Request{Prompt: "p"})
	assert.Error(t, err)
}

func TestGemini_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "proposal text")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":` + strconvQuote(extraction) + `}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), "test-key", srv.URL, "gemini-2.0-flash", srv.Client())
	require.NoError(t, err)

	out, err := g.Complete(context.Background(), plan.Request{System: "sys", Prompt: "proposal text", MaxTokens: 128})
	require.NoError(t, err)
	assert.Equal(t, extraction, out)
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "", "m", nil)
	assert.Error(t, err)
}

func TestNew_SelectsProvider(t *testing.T) {
	c, err := New(context.Background(), config.LLMConfig{Provider: "openai", APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, c)

	c, err = New(context.Background(), config.LLMConfig{Provider: "gemini", Model: "m"})
	assert.Error(t, err)
	assert.Nil(t, c)

	_, err = New(context.Background(), config.LLMConfig{Provider: "llama"})
	assert.Error(t, err)
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
