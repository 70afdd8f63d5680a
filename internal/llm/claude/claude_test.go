package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merlin/internal/llm"
	"merlin/internal/store"
	"merlin/internal/types"
)

func testBundle() types.ResultBundle {
	return types.ResultBundle{
		Request: types.AnalysisRequest{Symbol: "BTC/USDT", Timeframe: "15m"},
		Regime:  types.RegimeResult{Regime: types.RegimeBearish, Recommendation: types.RecommendShort},
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv(DefaultKeyEnv, "")
	_, err := New(store.LLMConfig{})
	assert.True(t, errors.Is(err, llm.ErrNotConfigured))
}

func TestGenerate(t *testing.T) {
	t.Setenv(DefaultKeyEnv, "ck-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ck-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, llm.DefaultSystem, body["system"])
		assert.Equal(t, DefaultModel, body["model"])

		w.Write([]byte(`{"content":[{"type":"text","text":"Sure.\n{\"recommendation\":\"SHORT\",\"rationale\":\"Lower highs.\","},{"type":"text","text":"\"key_levels\":[{\"type\":\"support\",\"value\":25000.5}]}"}]}`))
	}))
	defer srv.Close()

	p, err := New(store.LLMConfig{Endpoint: srv.URL, MaxTokens: 50})
	require.NoError(t, err)

	in, err := p.Generate(context.Background(), testBundle())
	require.NoError(t, err)
	assert.Equal(t, "claude", in.Provider)
	assert.Equal(t, "SHORT", in.Recommendation)
	assert.Equal(t, "Lower highs.", in.Rationale)
	assert.Equal(t, []string{"support: 25000.50"}, in.KeyLevels)
}

func TestReplyText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"blocks", `{"content":[{"type":"tool_use"},{"type":"text","text":"a"}]}`, "a"},
		{"completion", `{"completion":"b"}`, "b"},
		{"choices", `{"choices":[{"message":{"content":"c"}}]}`, "c"},
		{"choice text", `{"choices":[{"text":"d"}]}`, "d"},
		{"not json", `plain reply`, "plain reply"},
		{"unknown", `{"id":"x"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, replyText([]byte(tt.body)))
		})
	}
}

func TestGenerateEmptyReply(t *testing.T) {
	t.Setenv(DefaultKeyEnv, "ck-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	p, err := New(store.LLMConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), testBundle())
	assert.Error(t, err)
}
