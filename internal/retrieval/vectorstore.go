package retrieval

import (
	"context"
	"time"
)

// VectorStore is the interface for turn vector storage and similarity search
// backends. The current implementation uses SQLite with brute-force cosine
// similarity; an ANN-capable backend can replace it behind the same interface.
type VectorStore interface {
	// Insert adds records to the index.
	Insert(records []Record) error

	// Search performs vector similarity search, returning the top-K most
	// similar records ordered by descending score.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// BySession returns the records indexed under the given session ID.
	// Order is unspecified; callers must not assume chronological order.
	BySession(ctx context.Context, sessionID string) ([]Record, error)

	// SessionCounts returns the number of indexed records per session ID.
	SessionCounts(ctx context.Context) (map[string]int, error)

	// DeleteSession removes every record for the given session ID. Removing
	// an unknown session is not an error.
	DeleteSession(sessionID string) error

	// DeleteAll removes every record from the index.
	DeleteAll() error

	// Count returns the number of records in the index.
	Count() (int, error)
}

// Record represents one indexed conversation turn.
type Record struct {
	ID        string
	SessionID string
	Model     string
	Prompt    string
	Response  string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
