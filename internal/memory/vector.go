package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/relay/internal/retrieval"
	"github.com/kalambet/relay/internal/storage"
)

// VectorMemory indexes turns in a similarity store. Each turn is embedded
// once, over its prompt and response joined together.
type VectorMemory struct {
	embedder *retrieval.Embedder
	store    retrieval.VectorStore
}

// NewVectorMemory wires an embedder to a vector store.
func NewVectorMemory(embedder *retrieval.Embedder, store retrieval.VectorStore) *VectorMemory {
	return &VectorMemory{embedder: embedder, store: store}
}

// OpenVector opens the SQLite-backed turn index in dataDir and wires it to
// the embedder. The returned close func releases the database.
func OpenVector(dataDir string, embedder *retrieval.Embedder) (*VectorMemory, func() error, error) {
	st, err := storage.Open(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening vector index: %w", err)
	}
	return NewVectorMemory(embedder, retrieval.NewSQLiteStore(st.DB())), st.Close, nil
}

// Append embeds the turn and inserts it into the index.
func (v *VectorMemory) Append(ctx context.Context, sessionID string, t Turn) error {
	vec, err := v.embedder.Embed(ctx, t.Prompt+"\n"+t.Response)
	if err != nil {
		return fmt.Errorf("embedding turn: %w", err)
	}

	rec := retrieval.Record{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Model:     t.Model,
		Prompt:    t.Prompt,
		Response:  t.Response,
		Embedding: vec,
		CreatedAt: t.Timestamp,
	}
	if err := v.store.Insert([]retrieval.Record{rec}); err != nil {
		return fmt.Errorf("indexing turn: %w", err)
	}
	return nil
}

// Read returns up to limit turns for the session. The index does not
// preserve insertion order, so the result is not guaranteed chronological.
func (v *VectorMemory) Read(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	records, err := v.store.BySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading session from index: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	turns := make([]Turn, 0, len(records))
	for _, r := range records {
		turns = append(turns, recordTurn(r))
	}
	return turns, nil
}

// RetrieveSimilar embeds the query and returns the topK most similar turns
// across all sessions, most similar first.
func (v *VectorMemory) RetrieveSimilar(ctx context.Context, query string, topK int) ([]Turn, error) {
	vec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := v.store.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	turns := make([]Turn, 0, len(scored))
	for _, s := range scored {
		turns = append(turns, recordTurn(s.Record))
	}
	return turns, nil
}

// ClearSession removes the session's turns from the index.
func (v *VectorMemory) ClearSession(sessionID string) error {
	return v.store.DeleteSession(sessionID)
}

// ClearAll removes every turn from the index.
func (v *VectorMemory) ClearAll() error {
	return v.store.DeleteAll()
}

// SessionCounts returns the indexed turn count per session ID.
func (v *VectorMemory) SessionCounts(ctx context.Context) (map[string]int, error) {
	return v.store.SessionCounts(ctx)
}

func recordTurn(r retrieval.Record) Turn {
	return Turn{
		Timestamp: r.CreatedAt,
		Role:      "user",
		Model:     r.Model,
		Prompt:    r.Prompt,
		Response:  r.Response,
	}
}
