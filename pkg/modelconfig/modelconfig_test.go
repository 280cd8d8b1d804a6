package modelconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
	"github.com/codeready-toolchain/datagenflow/pkg/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), ":memory:", storage.EnvFallback{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGet_FallsBackToDefaultThenFirstThenEnv(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	svc := New(store, "", nil)

	_, err := svc.Get(ctx, storage.ModelKindLLM, "")
	require.Error(t, err, "no models at all, no env fallback configured")
	var notFound *engineerr.LLMConfigNotFoundError
	assert.ErrorAs(t, err, &notFound)

	svcWithEnv := New(store, "LLM_MODEL", nil)
	svcWithEnv.envModel = "llama3"
	cfg, err := svcWithEnv.Get(ctx, storage.ModelKindLLM, "")
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.ModelName)

	require.NoError(t, store.SaveModel(ctx, storage.ModelKindLLM, storage.ModelConfig{Name: "default", Provider: "openai", ModelName: "gpt-4"}))
	cfg, err = svc.Get(ctx, storage.ModelKindLLM, "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", cfg.ModelName)
}

func TestGet_RequestedNameWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveModel(ctx, storage.ModelKindLLM, storage.ModelConfig{Name: "a", Provider: "openai", ModelName: "gpt-4"}))
	require.NoError(t, store.SaveModel(ctx, storage.ModelKindLLM, storage.ModelConfig{Name: "b", Provider: "openai", ModelName: "gpt-4o"}))

	svc := New(store, "LLM_MODEL", nil)
	cfg, err := svc.Get(ctx, storage.ModelKindLLM, "b")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.ModelName)
}

func TestPrepareCall_OllamaStripsV1AndPrefixesModel(t *testing.T) {
	params := PrepareCall(storage.ModelConfig{Provider: "ollama", ModelName: "llama3", Endpoint: "http://localhost:11434/v1/chat"})
	assert.Equal(t, "ollama/llama3", params.Model)
	assert.Equal(t, "http://localhost:11434", params.Endpoint)
	assert.Empty(t, params.APIKey)
}

func TestPrepareCall_OtherProviderPassesThrough(t *testing.T) {
	params := PrepareCall(storage.ModelConfig{Provider: "openai", ModelName: "gpt-4", Endpoint: "https://api.openai.com", APIKey: "sk-x"})
	assert.Equal(t, "gpt-4", params.Model)
	assert.Equal(t, "sk-x", params.APIKey)
}

type stubTester struct{ err error }

func (s stubTester) Test(_ context.Context, _ storage.ModelConfig) error { return s.err }

func TestTestConnection_NoTesterConfigured(t *testing.T) {
	svc := New(openTestStore(t), "LLM_MODEL", nil)
	result := svc.TestConnection(context.Background(), storage.ModelConfig{})
	assert.False(t, result.Success)
}

func TestTestConnection_ReportsFailure(t *testing.T) {
	svc := New(openTestStore(t), "LLM_MODEL", stubTester{err: errors.New("unreachable")})
	result := svc.TestConnection(context.Background(), storage.ModelConfig{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "unreachable")
}

func TestTestConnection_ReportsSuccess(t *testing.T) {
	svc := New(openTestStore(t), "LLM_MODEL", stubTester{})
	result := svc.TestConnection(context.Background(), storage.ModelConfig{})
	assert.True(t, result.Success)
}
