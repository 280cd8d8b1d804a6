package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_FirstSavedBecomesDefaultRegardlessOfFlag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveModel(ctx, ModelKindLLM, ModelConfig{Name: "m1", Provider: "openai", ModelName: "gpt-4"}))

	m, found, err := s.GetModel(ctx, ModelKindLLM, "m1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, m.IsDefault)
}

func TestModel_SavingNewDefaultClearsOthers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveModel(ctx, ModelKindLLM, ModelConfig{Name: "m1", Provider: "openai", ModelName: "gpt-4"}))
	require.NoError(t, s.SaveModel(ctx, ModelKindLLM, ModelConfig{Name: "m2", Provider: "openai", ModelName: "gpt-4o", IsDefault: true}))

	m1, _, _ := s.GetModel(ctx, ModelKindLLM, "m1")
	m2, _, _ := s.GetModel(ctx, ModelKindLLM, "m2")
	assert.False(t, m1.IsDefault)
	assert.True(t, m2.IsDefault)
}

func TestModel_DeleteDefaultPromotesNextByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveModel(ctx, ModelKindLLM, ModelConfig{Name: "a-model", Provider: "openai", ModelName: "gpt-4"}))
	require.NoError(t, s.SaveModel(ctx, ModelKindLLM, ModelConfig{Name: "b-model", Provider: "openai", ModelName: "gpt-4o"}))

	deleted, err := s.DeleteModel(ctx, ModelKindLLM, "a-model")
	require.NoError(t, err)
	assert.True(t, deleted)

	b, found, err := s.GetModel(ctx, ModelKindLLM, "b-model")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, b.IsDefault, "remaining model must be promoted to default")
}

func TestModel_SetDefaultExplicitly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveModel(ctx, ModelKindEmbedding, ModelConfig{Name: "e1", Provider: "openai", ModelName: "text-embedding-3"}))
	require.NoError(t, s.SaveModel(ctx, ModelKindEmbedding, ModelConfig{Name: "e2", Provider: "openai", ModelName: "text-embedding-3-large"}))

	require.NoError(t, s.SetDefaultModel(ctx, ModelKindEmbedding, "e2"))

	e1, _, _ := s.GetModel(ctx, ModelKindEmbedding, "e1")
	e2, _, _ := s.GetModel(ctx, ModelKindEmbedding, "e2")
	assert.False(t, e1.IsDefault)
	assert.True(t, e2.IsDefault)
}

func TestModel_GetDefaultModel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetDefaultModel(ctx, ModelKindLLM)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveModel(ctx, ModelKindLLM, ModelConfig{Name: "only", Provider: "openai", ModelName: "gpt-4"}))
	def, found, err := s.GetDefaultModel(ctx, ModelKindLLM)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "only", def.Name)
}
