package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", EnvFallback{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_MigratesEnvFallbackWhenNoModelsExist(t *testing.T) {
	s, err := Open(context.Background(), ":memory:", EnvFallback{Endpoint: "http://localhost:11434", Model: "llama3"})
	require.NoError(t, err)
	defer s.Close()

	models, err := s.ListModels(context.Background(), ModelKindLLM)
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "ollama", models[0].Provider)
	require.True(t, models[0].IsDefault)
}

func TestOpen_NoEnvFallbackWhenModelEmpty(t *testing.T) {
	s := openTestStore(t)
	models, err := s.ListModels(context.Background(), ModelKindLLM)
	require.NoError(t, err)
	require.Empty(t, models)
}

func TestInferProvider(t *testing.T) {
	cases := map[string]string{
		"http://localhost:11434":                "ollama",
		"http://ollama.local":                    "ollama",
		"https://api.anthropic.com":              "anthropic",
		"https://generativelanguage.googleapis.com": "gemini",
		"https://api.openai.com":                 "openai",
		"https://example.com":                    "openai",
	}
	for endpoint, want := range cases {
		require.Equal(t, want, inferProvider(endpoint), endpoint)
	}
}
