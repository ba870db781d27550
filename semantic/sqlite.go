package semantic

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists MemoryRecords in the table named by spec.md §6:
// {id, agentId, content, embedding (serialised vector), metadata,
// relevanceScore, accessCount, createdAt, lastAccessedAt}.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the memory_records table
// at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("semantic: open sqlite: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS memory_records (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding TEXT NOT NULL,
	metadata TEXT NOT NULL,
	relevance_score REAL NOT NULL,
	access_count INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	last_accessed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_records_agent ON memory_records(agent_id);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("semantic: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, r *MemoryRecord) error {
	embeddingJSON, err := json.Marshal(r.Embedding)
	if err != nil {
		return fmt.Errorf("semantic: marshal embedding: %w", err)
	}
	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("semantic: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO memory_records (id, agent_id, content, embedding, metadata, relevance_score, access_count, created_at, last_accessed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	content=excluded.content,
	embedding=excluded.embedding,
	metadata=excluded.metadata,
	relevance_score=excluded.relevance_score,
	access_count=excluded.access_count,
	last_accessed_at=excluded.last_accessed_at
`,
		r.ID, r.AgentID, r.Content, string(embeddingJSON), string(metadataJSON),
		r.RelevanceScore, r.AccessCount, r.CreatedAt.Format(time.RFC3339Nano), r.LastAccessedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("semantic: save record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memory_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("semantic: delete record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, agent_id, content, embedding, metadata, relevance_score, access_count, created_at, last_accessed_at
FROM memory_records`)
	if err != nil {
		return nil, fmt.Errorf("semantic: load records: %w", err)
	}
	defer rows.Close()

	var out []*MemoryRecord
	for rows.Next() {
		var r MemoryRecord
		var embeddingJSON, metadataJSON, createdAt, lastAccessedAt string

		if err := rows.Scan(&r.ID, &r.AgentID, &r.Content, &embeddingJSON, &metadataJSON,
			&r.RelevanceScore, &r.AccessCount, &createdAt, &lastAccessedAt); err != nil {
			return nil, fmt.Errorf("semantic: scan record: %w", err)
		}

		if err := json.Unmarshal([]byte(embeddingJSON), &r.Embedding); err != nil {
			return nil, fmt.Errorf("semantic: unmarshal embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
			return nil, fmt.Errorf("semantic: unmarshal metadata: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		r.LastAccessedAt, _ = time.Parse(time.RFC3339Nano, lastAccessedAt)

		out = append(out, &r)
	}

	return out, rows.Err()
}
