package semantic

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float64{1, 2, 3}
	require.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityZeroNorm(t *testing.T) {
	require.Equal(t, 0.0, CosineSimilarity([]float64{0, 0, 0}, []float64{1, 2, 3}))
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(Config{}, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "agent-a", "hello world this is a test query", nil)
	require.NoError(t, err)

	results, err := s.Retrieve(ctx, "agent-a", "hello world this is a test query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestStoreDedupIncreasesRelevance(t *testing.T) {
	s := NewStore(Config{}, nil, nil, nil, nil)
	ctx := context.Background()

	id1, err := s.Store(ctx, "agent-a", "the quick brown fox jumps", nil)
	require.NoError(t, err)

	sh := s.shardFor("agent-a")
	sh.mu.RLock()
	before := sh.records[0].RelevanceScore
	sh.mu.RUnlock()

	id2, err := s.Store(ctx, "agent-a", "the quick brown fox jumps", nil)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	require.Len(t, sh.records, 1)
	require.Greater(t, sh.records[0].RelevanceScore, before)
}

func TestStoreEvictionRespectsCap(t *testing.T) {
	s := NewStore(Config{MaxMemories: 100}, nil, nil, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Store(ctx, "agent-a", uniqueContent(i), nil)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sh := s.shardFor("agent-a")
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	require.LessOrEqual(t, len(sh.records), 100)
}

func uniqueContent(i int) string {
	letters := "abcdefghijklmnopqrstuvwxyz"
	tag := string(letters[i%26]) + string(letters[(i/26)%26])
	return "alpha" + tag + " bravo" + tag + " charlie" + tag
}
