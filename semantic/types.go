package semantic

import "time"

// MemoryRecord is a persisted (query,response) pair indexed by embedding
// similarity and ranked by a relevance+access score used for eviction.
type MemoryRecord struct {
	ID             string
	AgentID        string
	Content        string
	Embedding      []float64
	Metadata       map[string]interface{}
	RelevanceScore float64
	AccessCount    int
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Scored pairs a MemoryRecord with the similarity score it was retrieved
// at, so callers don't have to recompute it.
type Scored struct {
	Record     *MemoryRecord
	Similarity float64
}

// compositeScore is the eviction ranking function from spec.md §4.2:
// 0.7*relevanceScore + 0.3*(accessCount/100).
func compositeScore(r *MemoryRecord) float64 {
	return 0.7*r.RelevanceScore + 0.3*(float64(r.AccessCount)/100.0)
}
