package openai

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

	"merlin/internal/api"
	"merlin/internal/llm"
	"merlin/internal/store"
	"merlin/internal/types"
)

func testBundle() types.ResultBundle {
	return types.ResultBundle{
		Request: types.AnalysisRequest{Symbol: "BTC/USDT", Timeframe: "15m"},
		Regime:  types.RegimeResult{Regime: types.RegimeNeutral, Recommendation: types.RecommendNeutral},
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("MERLIN_TEST_OPENAI_KEY", "")
	_, err := New(store.LLMConfig{APIKeyEnv: "MERLIN_TEST_OPENAI_KEY"})
	assert.True(t, errors.Is(err, llm.ErrNotConfigured))
}

func TestGenerate(t *testing.T) {
	t.Setenv("MERLIN_TEST_OPENAI_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Contains(t, body.Messages[1].Content, "BTC/USDT")

		w.Write([]byte(`{"choices":[{"message":{"content":"{\"recommendation\":\"NEUTRAL\",\"rationale\":\"Range bound.\",\"risks\":[\"breakout\"]}"}}]}`))
	}))
	defer srv.Close()

	p, err := New(store.LLMConfig{APIKeyEnv: "MERLIN_TEST_OPENAI_KEY", Endpoint: srv.URL, MaxTokens: 100})
	require.NoError(t, err)

	in, err := p.Generate(context.Background(), testBundle())
	require.NoError(t, err)
	assert.Equal(t, "openai", in.Provider)
	assert.Equal(t, "NEUTRAL", in.Recommendation)
	assert.Equal(t, "Range bound.", in.Rationale)
	assert.Equal(t, []string{"breakout"}, in.Risks)
	assert.False(t, in.Fallback)
}

func TestGenerateHTTPError(t *testing.T) {
	t.Setenv("MERLIN_TEST_OPENAI_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New(store.LLMConfig{APIKeyEnv: "MERLIN_TEST_OPENAI_KEY", Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), testBundle())
	var se *api.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestGenerateNoChoices(t *testing.T) {
	t.Setenv("MERLIN_TEST_OPENAI_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p, err := New(store.LLMConfig{APIKeyEnv: "MERLIN_TEST_OPENAI_KEY", Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), testBundle())
	assert.Error(t, err)
}

func TestGenerateHonoursContext(t *testing.T) {
	t.Setenv("MERLIN_TEST_OPENAI_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, err := New(store.LLMConfig{APIKeyEnv: "MERLIN_TEST_OPENAI_KEY", Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, testBundle())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
