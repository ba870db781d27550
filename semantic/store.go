package semantic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corelattice/aec/core"
	"github.com/corelattice/aec/kv"
	"github.com/google/uuid"
)

// Config controls Store behaviour. Zero values are replaced with the
// defaults named in spec.md §6.
type Config struct {
	MaxMemories         int
	SimilarityThreshold float64
	DedupThreshold      float64
}

func (c Config) withDefaults() Config {
	if c.MaxMemories == 0 {
		c.MaxMemories = 1000
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.75
	}
	if c.DedupThreshold == 0 {
		c.DedupThreshold = 0.90
	}
	return c
}

// Persister durably stores and loads MemoryRecords. *SQLiteStore
// implements it; a no-op implementation is used when no database is
// configured.
type Persister interface {
	Save(ctx context.Context, r *MemoryRecord) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*MemoryRecord, error)
}

type noopPersister struct{}

func (noopPersister) Save(ctx context.Context, r *MemoryRecord) error { return nil }
func (noopPersister) Delete(ctx context.Context, id string) error    { return nil }
func (noopPersister) LoadAll(ctx context.Context) ([]*MemoryRecord, error) {
	return nil, nil
}

// shard holds every MemoryRecord for one agent, guarded by its own lock so
// that stores/retrievals for distinct agents never contend. Retrieval
// takes the read lock; store takes the write lock.
type shard struct {
	mu      sync.RWMutex
	records []*MemoryRecord
}

// Store is the Semantic Memory component (SM).
type Store struct {
	cfg       Config
	embedder  Embedder
	persister Persister
	cache     kv.Cache
	logger    core.ComponentAwareLogger

	shardsMu sync.Mutex
	shards   map[string]*shard
}

// NewStore constructs a Store. cache may be nil to disable embedding
// caching; persister may be nil to disable durable persistence.
func NewStore(cfg Config, embedder Embedder, persister Persister, cache kv.Cache, logger core.ComponentAwareLogger) *Store {
	if embedder == nil {
		embedder = NewLexicalEmbedder()
	}
	if persister == nil {
		persister = noopPersister{}
	}
	if logger == nil {
		logger = core.NewProductionLogger(core.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "aec").(core.ComponentAwareLogger)
	}

	s := &Store{
		cfg:       cfg.withDefaults(),
		embedder:  embedder,
		persister: persister,
		cache:     cache,
		logger:    logger.WithComponent("framework/memory").(core.ComponentAwareLogger),
		shards:    make(map[string]*shard),
	}

	return s
}

// Restore loads every persisted record back into memory. Call once at
// startup before serving traffic.
func (s *Store) Restore(ctx context.Context) error {
	records, err := s.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("semantic: restore: %w", err)
	}
	for _, r := range records {
		sh := s.shardFor(r.AgentID)
		sh.mu.Lock()
		sh.records = append(sh.records, r)
		sh.mu.Unlock()
	}
	return nil
}

func (s *Store) shardFor(agentID string) *shard {
	s.shardsMu.Lock()
	defer s.shardsMu.Unlock()

	sh, ok := s.shards[agentID]
	if !ok {
		sh = &shard{}
		s.shards[agentID] = sh
	}
	return sh
}

func (s *Store) embed(ctx context.Context, text string) ([]float64, error) {
	if s.cache != nil {
		key := "embedding:" + hashKey(text)
		if v, err := s.cache.Get(ctx, key); err == nil {
			switch vec := v.(type) {
			case []float64:
				return vec, nil
			case []interface{}:
				out := make([]float64, len(vec))
				for i, f := range vec {
					if fv, ok := f.(float64); ok {
						out[i] = fv
					}
				}
				return out, nil
			}
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		key := "embedding:" + hashKey(text)
		_ = s.cache.Set(ctx, key, vec, time.Hour)
	}

	return vec, nil
}

// Store computes an embedding for content; if an existing record of the
// same agent has similarity >= dedupThreshold, its relevanceScore is
// bumped instead of inserting a duplicate. Otherwise a new record is
// inserted, evicting the lowest-scored 10% if this pushes the agent over
// maxMemories.
func (s *Store) Store(ctx context.Context, agentID, content string, metadata map[string]interface{}) (string, error) {
	vec, err := s.embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("semantic: embed: %w", err)
	}

	sh := s.shardFor(agentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for _, existing := range sh.records {
		if CosineSimilarity(existing.Embedding, vec) >= s.cfg.DedupThreshold {
			existing.RelevanceScore += 0.05
			existing.LastAccessedAt = time.Now()
			if err := s.persister.Save(ctx, existing); err != nil {
				s.logger.Warn("failed to persist deduped record", map[string]interface{}{"agent_id": agentID, "error": err.Error()})
			}
			return existing.ID, nil
		}
	}

	now := time.Now()
	record := &MemoryRecord{
		ID:             uuid.NewString(),
		AgentID:        agentID,
		Content:        content,
		Embedding:      vec,
		Metadata:       metadata,
		RelevanceScore: 0.5,
		AccessCount:    0,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	sh.records = append(sh.records, record)

	if err := s.persister.Save(ctx, record); err != nil {
		s.logger.Warn("failed to persist record", map[string]interface{}{"agent_id": agentID, "error": err.Error()})
	}

	if len(sh.records) > s.cfg.MaxMemories {
		s.evictLocked(ctx, sh)
	}

	return record.ID, nil
}

// evictLocked removes the lowest-scored 10% of records. Caller must hold
// sh.mu for writing.
func (s *Store) evictLocked(ctx context.Context, sh *shard) {
	n := len(sh.records)
	evictCount := n / 10
	if evictCount == 0 {
		evictCount = 1
	}

	sorted := make([]*MemoryRecord, n)
	copy(sorted, sh.records)
	sort.Slice(sorted, func(i, j int) bool {
		return compositeScore(sorted[i]) < compositeScore(sorted[j])
	})

	toEvict := make(map[string]bool, evictCount)
	for i := 0; i < evictCount && i < n; i++ {
		toEvict[sorted[i].ID] = true
	}

	kept := sh.records[:0]
	for _, r := range sh.records {
		if toEvict[r.ID] {
			if err := s.persister.Delete(ctx, r.ID); err != nil {
				s.logger.Warn("failed to delete evicted record", map[string]interface{}{"id": r.ID, "error": err.Error()})
			}
			continue
		}
		kept = append(kept, r)
	}
	sh.records = kept
}

// Retrieve returns the top-K records for agentID whose similarity to
// query meets similarityThreshold, sorted descending by similarity. Every
// returned record has AccessCount incremented and RelevanceScore bumped.
func (s *Store) Retrieve(ctx context.Context, agentID, query string, k int) ([]Scored, error) {
	return s.findAbove(ctx, agentID, query, s.cfg.SimilarityThreshold, k, true)
}

// FindSimilar is like Retrieve but with a caller-supplied threshold, no
// top-K limit and no access-count bookkeeping, for callers that need a
// raw similarity check. Store's dedup check scans the shard itself and
// does not call it.
func (s *Store) FindSimilar(ctx context.Context, agentID, content string, threshold float64) ([]Scored, error) {
	return s.findAbove(ctx, agentID, content, threshold, -1, false)
}

func (s *Store) findAbove(ctx context.Context, agentID, query string, threshold float64, k int, touchAccess bool) ([]Scored, error) {
	start := time.Now()
	defer func() {
		if reg := core.GetGlobalMetricsRegistry(); reg != nil {
			reg.Histogram("aec.semantic.retrieve_latency_ms", float64(time.Since(start).Milliseconds()), "agent_id", agentID)
		}
	}()

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", err)
	}

	sh := s.shardFor(agentID)

	sh.mu.RLock()
	candidates := make([]*MemoryRecord, len(sh.records))
	copy(candidates, sh.records)
	sh.mu.RUnlock()

	var results []Scored
	for _, r := range candidates {
		sim := CosineSimilarity(r.Embedding, vec)
		if sim >= threshold {
			results = append(results, Scored{Record: r, Similarity: sim})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if k >= 0 && len(results) > k {
		results = results[:k]
	}

	if touchAccess {
		sh.mu.Lock()
		now := time.Now()
		for _, res := range results {
			res.Record.AccessCount++
			res.Record.LastAccessedAt = now
			res.Record.RelevanceScore += 0.01
		}
		sh.mu.Unlock()
	}

	return results, nil
}

func hashKey(text string) string {
	h := fnv32(text)
	return fmt.Sprintf("%x", h)
}
