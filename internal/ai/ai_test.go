package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cvision/internal/config"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	out   string
	err   error
	calls int32
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(context.Context, string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.out, s.err
}

func TestCleanJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, CleanJSONBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanJSONBlock("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, CleanJSONBlock(`  {"a":1} `))
}

func TestGenerateJSON(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	p := &stubProvider{out: "```json\n{\"name\":\"Jane Doe\"}\n```"}
	require.NoError(t, GenerateJSON(t.Context(), p, "x", &out))
	assert.Equal(t, "Jane Doe", out.Name)

	p = &stubProvider{out: "not json"}
	err := GenerateJSON(t.Context(), p, "x", &out)
	assert.ErrorIs(t, err, ErrInvalidJSON)

	p = &stubProvider{out: "```json\n```"}
	assert.ErrorIs(t, GenerateJSON(t.Context(), p, "x", &out), ErrEmptyResponse)

	_, err = NoProvider{}.Generate(t.Context(), "x")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestSelectProviderPriority(t *testing.T) {
	cfg := config.DefaultConfig().AI

	p, err := SelectProvider(t.Context(), cfg)
	require.NoError(t, err)
	assert.False(t, Available(p), "没有 key 时应返回 NoProvider")

	cfg.OpenAI.APIKey = "oa"
	cfg.OpenRouter.APIKey = "or"
	p, err = SelectProvider(t.Context(), cfg)
	require.NoError(t, err)
	assert.True(t, Available(p))
	assert.Equal(t, "openrouter", p.Name())

	cfg.OpenRouter.APIKey = ""
	p, err = SelectProvider(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestOpenAICompatProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, SystemPrompt, req.Messages[0].Content)
		assert.Equal(t, "hello", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider("openai", config.ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "m"}, 0)
	out, err := p.Generate(t.Context(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestOpenAICompatProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider("openrouter", config.ProviderConfig{APIKey: "k", BaseURL: srv.URL}, 0)
	_, err := p.Generate(t.Context(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()

	p = NewOpenAICompatProvider("openrouter", config.ProviderConfig{APIKey: "k", BaseURL: empty.URL}, 0)
	_, err = p.Generate(t.Context(), "hello")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGuardedProviderTripsBreaker(t *testing.T) {
	inner := &stubProvider{err: errors.New("boom")}
	g := NewGuardedProvider(inner, GuardOptions{QPM: 6000, MinRequests: 3, FailureRatio: 0.5})

	for i := 0; i < 3; i++ {
		_, err := g.Generate(t.Context(), "p")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.Generate(t.Context(), "p")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls), "熔断打开后不应再调用下游")
}

func TestGuardedProviderPassesThrough(t *testing.T) {
	g := NewGuardedProvider(&stubProvider{out: "hi"}, GuardOptions{})
	out, err := g.Generate(t.Context(), "p")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, "stub", g.Name())
}

func TestGuardedProviderHonoursContext(t *testing.T) {
	g := NewGuardedProvider(&stubProvider{out: "hi"}, GuardOptions{QPM: 1})
	_, err := g.Generate(t.Context(), "p")
	require.NoError(t, err, "第一个令牌来自 burst")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = g.Generate(ctx, "p")
	assert.Error(t, err)
}
