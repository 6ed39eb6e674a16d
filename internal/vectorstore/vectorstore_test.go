package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Local {
	t.Helper()
	store, err := NewLocal(t.TempDir(), NewHashEmbedder(32))
	require.NoError(t, err)
	return store
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(16)
	a, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestHashEmbedderDiffersByText(t *testing.T) {
	e := NewHashEmbedder(16)
	a, _ := e.Embed(context.Background(), "alpha")
	b, _ := e.Embed(context.Background(), "beta")
	assert.NotEqual(t, a, b)
}

func TestLocalAddIsIdempotentByContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.Add(ctx, CollectionKnowledgeBase, "fraud escalation procedure", nil, "fraud_review")
	require.NoError(t, err)
	id2, err := store.Add(ctx, CollectionKnowledgeBase, "fraud escalation procedure", nil, "fraud_review")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	store.mu.RLock()
	n := len(store.records[CollectionKnowledgeBase])
	store.mu.RUnlock()
	assert.Equal(t, 1, n)
}

func TestLocalQueryReturnsMostSimilarFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, CollectionKnowledgeBase, "bank dispute chargeback policy", nil, "bank_dispute")
	require.NoError(t, err)
	_, err = store.Add(ctx, CollectionKnowledgeBase, "legal intake jurisdiction checklist", nil, "legal_intake")
	require.NoError(t, err)

	matches, err := store.Query(ctx, CollectionKnowledgeBase, "bank dispute chargeback policy", 5, "", -1)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestLocalQueryFiltersByCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, CollectionKnowledgeBase, "text one", nil, "fraud_review")
	require.NoError(t, err)
	_, err = store.Add(ctx, CollectionKnowledgeBase, "text two", nil, "legal_intake")
	require.NoError(t, err)

	matches, err := store.Query(ctx, CollectionKnowledgeBase, "text", 5, "fraud_review", -1)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "text two", m.Text)
	}
}

func TestLocalQueryRespectsThresholdAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := store.Add(ctx, CollectionKnowledgeBase, text, nil, "")
		require.NoError(t, err)
	}

	matches, err := store.Query(ctx, CollectionKnowledgeBase, "one", 2, "", -1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)

	noMatches, err := store.Query(ctx, CollectionKnowledgeBase, "one", 5, "", 1.5)
	require.NoError(t, err)
	assert.Empty(t, noMatches)
}

func TestLocalDecisionSupportFansOutAcrossCollections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, CollectionKnowledgeBase, "fraud review triage steps", nil, "fraud_review")
	require.NoError(t, err)
	_, err = store.Add(ctx, CollectionPolicies, "fraud review escalation policy", nil, "")
	require.NoError(t, err)
	_, err = store.Add(ctx, CollectionSOP, "fraud review standard procedure", nil, "")
	require.NoError(t, err)

	result, err := store.DecisionSupport(ctx, "fraud review triage steps", "fraud_review", 3)
	require.NoError(t, err)

	assert.Contains(t, result, CollectionKnowledgeBase)
	assert.Contains(t, result, CollectionPolicies)
	assert.Contains(t, result, CollectionSOP)
}

func TestLocalPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	embedder := NewHashEmbedder(8)

	store1, err := NewLocal(dir, embedder)
	require.NoError(t, err)
	_, err = store1.Add(context.Background(), CollectionDocuments, "persisted text", map[string]any{"k": "v"}, "")
	require.NoError(t, err)

	store2, err := NewLocal(dir, embedder)
	require.NoError(t, err)
	matches, err := store2.Query(context.Background(), CollectionDocuments, "persisted text", 1, "", -1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "persisted text", matches[0].Text)
}

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := []float32{1, 0, 0}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, cosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0, 0}
	assert.Equal(t, 0.0, cosineSimilarity(a, b))
}
