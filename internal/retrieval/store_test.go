package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database with the turn_vectors table.
func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE turn_vectors (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

func testRecord(id, sessionID string, embedding []float32) Record {
	return Record{
		ID:        id,
		SessionID: sessionID,
		Model:     "llama3.2",
		Prompt:    "prompt for " + id,
		Response:  "response for " + id,
		Embedding: embedding,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestInsertAndCount(t *testing.T) {
	s := openTestDB(t)

	records := []Record{
		testRecord("r1", "s1", []float32{1, 0, 0}),
		testRecord("r2", "s1", []float32{0, 1, 0}),
		testRecord("r3", "s2", []float32{0, 0, 1}),
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	s := openTestDB(t)

	records := []Record{
		testRecord("exact", "s1", []float32{1, 0, 0}),
		testRecord("close", "s1", []float32{0.9, 0.1, 0}),
		testRecord("orthogonal", "s1", []float32{0, 1, 0}),
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "exact" {
		t.Errorf("results[0].ID = %q, want %q", results[0].ID, "exact")
	}
	if results[1].ID != "close" {
		t.Errorf("results[1].ID = %q, want %q", results[1].ID, "close")
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
	if results[0].Prompt != "prompt for exact" || results[0].Response != "response for exact" {
		t.Errorf("full record not hydrated: %+v", results[0].Record)
	}
}

func TestSearch_TopKBound(t *testing.T) {
	s := openTestDB(t)

	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, testRecord(fmt.Sprintf("r%d", i), "s1", []float32{float32(i + 1), 1, 0}))
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	s := openTestDB(t)

	results, err := s.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestSearch_ZeroQueryVector(t *testing.T) {
	s := openTestDB(t)

	if err := s.Insert([]Record{testRecord("r1", "s1", []float32{1, 0, 0})}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search([]float32{0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("got %v, want nil for zero-norm query", results)
	}
}

func TestBySession_Filters(t *testing.T) {
	s := openTestDB(t)

	records := []Record{
		testRecord("a1", "alpha", []float32{1, 0}),
		testRecord("a2", "alpha", []float32{0, 1}),
		testRecord("b1", "beta", []float32{1, 1}),
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.BySession(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	for _, r := range got {
		if r.SessionID != "alpha" {
			t.Errorf("record %s has session %q, want %q", r.ID, r.SessionID, "alpha")
		}
	}
}

func TestBySession_Unknown(t *testing.T) {
	s := openTestDB(t)

	got, err := s.BySession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}

func TestSessionCounts(t *testing.T) {
	s := openTestDB(t)

	records := []Record{
		testRecord("a1", "alpha", []float32{1, 0}),
		testRecord("a2", "alpha", []float32{0, 1}),
		testRecord("b1", "beta", []float32{1, 1}),
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	counts, err := s.SessionCounts(context.Background())
	if err != nil {
		t.Fatalf("SessionCounts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("got %d sessions, want 2", len(counts))
	}
	if counts["alpha"] != 2 || counts["beta"] != 1 {
		t.Errorf("counts = %v, want alpha:2 beta:1", counts)
	}
}

func TestDeleteSession(t *testing.T) {
	s := openTestDB(t)

	records := []Record{
		testRecord("a1", "alpha", []float32{1, 0}),
		testRecord("b1", "beta", []float32{0, 1}),
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.DeleteSession("alpha"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	// Deleting an unknown session is not an error.
	if err := s.DeleteSession("alpha"); err != nil {
		t.Errorf("DeleteSession (repeat) = %v, want nil", err)
	}
}

func TestDeleteAll(t *testing.T) {
	s := openTestDB(t)

	records := []Record{
		testRecord("a1", "alpha", []float32{1, 0}),
		testRecord("b1", "beta", []float32{0, 1}),
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}

	// Idempotent on an empty index.
	if err := s.DeleteAll(); err != nil {
		t.Errorf("DeleteAll (repeat) = %v, want nil", err)
	}
}

func TestFloat32Codec_RoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.75, 0}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decodeFloat32s: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d floats, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %f, want %f", i, out[i], in[i])
		}
	}
}

func TestFloat32Codec_Corrupt(t *testing.T) {
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
