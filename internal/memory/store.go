package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Memory modes.
const (
	ModeSession = "session"
	ModeVector  = "vector"
)

// WriteStatus describes how an append landed.
type WriteStatus int

const (
	// WriteOK means the turn was persisted through the active mode.
	WriteOK WriteStatus = iota
	// WriteDegraded means the vector path failed and the turn landed in the
	// plain session log instead.
	WriteDegraded
	// WriteFailed means the turn was not persisted anywhere.
	WriteFailed
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "ok"
	case WriteDegraded:
		return "degraded"
	case WriteFailed:
		return "failed"
	default:
		return fmt.Sprintf("WriteStatus(%d)", int(s))
	}
}

// AppendResult reports the outcome of an append. Err is set for degraded and
// failed writes.
type AppendResult struct {
	Status WriteStatus
	Err    error
}

// SessionInfo is one known session and its turn count.
type SessionInfo struct {
	ID    string
	Turns int
}

// Options configures a Store.
type Options struct {
	Enabled     bool
	Mode        string
	StoragePath string
	MaxHistory  int
	Logger      *slog.Logger
}

// Store is the memory subsystem facade. It owns the mode state machine:
// vector mode can downgrade to session mode at construction when the vector
// backend is unavailable, and never upgrades back within a process.
type Store struct {
	enabled    bool
	maxHistory int
	log        *SessionLog
	vectors    *VectorMemory
	logger     *slog.Logger

	mu   sync.Mutex
	mode string
}

// New builds a Store. Pass vectors == nil when the vector backend could not
// be initialized; vector mode then downgrades to session mode.
func New(opts Options, vectors *VectorMemory) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxHistory := opts.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 10
	}

	mode := opts.Mode
	switch mode {
	case ModeSession, ModeVector:
	case "":
		mode = ModeSession
	default:
		logger.Warn("unknown memory mode, using session", "mode", mode)
		mode = ModeSession
	}
	if mode == ModeVector && vectors == nil {
		logger.Warn("vector store unavailable, downgrading memory to session mode")
		mode = ModeSession
	}

	return &Store{
		enabled:    opts.Enabled,
		maxHistory: maxHistory,
		log:        NewSessionLog(opts.StoragePath),
		vectors:    vectors,
		logger:     logger,
		mode:       mode,
	}
}

// Enabled reports whether memory is on at all.
func (s *Store) Enabled() bool {
	return s.enabled
}

// Mode returns the active memory mode.
func (s *Store) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Append persists one turn. Disabled memory accepts and drops the turn. In
// vector mode an embedding or index failure falls back to the session log
// for this turn only; the mode itself stays vector.
func (s *Store) Append(ctx context.Context, sessionID string, turn Turn) AppendResult {
	if !s.enabled {
		return AppendResult{Status: WriteOK}
	}
	if !ValidSessionID(sessionID) {
		err := fmt.Errorf("invalid session id %q", sessionID)
		s.logger.Warn("memory append rejected", "error", err)
		return AppendResult{Status: WriteFailed, Err: err}
	}

	if turn.Role == "" {
		turn.Role = "user"
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	if s.Mode() == ModeVector {
		if err := s.vectors.Append(ctx, sessionID, turn); err != nil {
			s.logger.Warn("vector append failed, falling back to session log",
				"session", sessionID, "error", err)
			if logErr := s.log.Append(sessionID, turn); logErr != nil {
				s.logger.Error("session log fallback failed", "session", sessionID, "error", logErr)
				return AppendResult{Status: WriteFailed, Err: errors.Join(err, logErr)}
			}
			return AppendResult{Status: WriteDegraded, Err: err}
		}
		return AppendResult{Status: WriteOK}
	}

	if err := s.log.Append(sessionID, turn); err != nil {
		s.logger.Warn("session append failed", "session", sessionID, "error", err)
		return AppendResult{Status: WriteFailed, Err: err}
	}
	return AppendResult{Status: WriteOK}
}

// Read returns the session's context window, at most max_history turns.
// Read failures degrade to an empty window rather than blocking a dispatch.
func (s *Store) Read(ctx context.Context, sessionID string) []Turn {
	if !s.enabled || !ValidSessionID(sessionID) {
		return nil
	}

	if s.Mode() == ModeVector {
		turns, err := s.vectors.Read(ctx, sessionID, s.maxHistory)
		if err == nil {
			return turns
		}
		s.logger.Warn("vector read failed, falling back to session log",
			"session", sessionID, "error", err)
	}

	turns, err := s.log.Read(sessionID, s.maxHistory)
	if err != nil {
		s.logger.Warn("session read failed", "session", sessionID, "error", err)
		return nil
	}
	return turns
}

// RetrieveSimilar returns the topK turns most similar to the query. Only
// vector mode can answer; session mode returns nothing.
func (s *Store) RetrieveSimilar(ctx context.Context, query string, topK int) []Turn {
	if !s.enabled || s.Mode() != ModeVector {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}

	turns, err := s.vectors.RetrieveSimilar(ctx, query, topK)
	if err != nil {
		s.logger.Warn("similarity retrieval failed", "error", err)
		return nil
	}
	return turns
}

// History returns every turn recorded for the session, without the
// max_history window. In vector mode the session log may additionally hold
// turns written through per-turn fallback; both sources are returned.
func (s *Store) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, nil
	}

	logged, err := s.log.Read(sessionID, 0)
	if err != nil {
		return nil, err
	}
	if s.vectors == nil {
		return logged, nil
	}

	indexed, err := s.vectors.Read(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	return append(indexed, logged...), nil
}

// Clear removes one session from every store that may hold it. Unknown
// sessions clear cleanly.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if !ValidSessionID(sessionID) {
		return nil
	}
	if s.vectors != nil {
		if err := s.vectors.ClearSession(sessionID); err != nil {
			return err
		}
	}
	return s.log.Clear(sessionID)
}

// ClearAll removes every session.
func (s *Store) ClearAll(ctx context.Context) error {
	if s.vectors != nil {
		if err := s.vectors.ClearAll(); err != nil {
			return err
		}
	}
	return s.log.ClearAll()
}

// Sessions lists known sessions with their turn counts, merged across the
// session log and the vector index, sorted by ID.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	counts, err := s.log.Sessions()
	if err != nil {
		return nil, err
	}

	if s.vectors != nil {
		indexed, err := s.vectors.SessionCounts(ctx)
		if err != nil {
			return nil, err
		}
		for id, n := range indexed {
			counts[id] += n
		}
	}

	infos := make([]SessionInfo, 0, len(counts))
	for id, n := range counts {
		infos = append(infos, SessionInfo{ID: id, Turns: n})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}
