package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// validSessionID restricts session IDs so caller-supplied values can never
// escape the storage directory.
var validSessionID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidSessionID reports whether id is usable as a session identifier.
func ValidSessionID(id string) bool {
	return validSessionID.MatchString(id)
}

// SessionLog persists turns as append-only JSON Lines files, one
// <session_id>.jsonl file per session under a storage directory.
type SessionLog struct {
	dir string
}

// NewSessionLog creates a SessionLog rooted at dir. The directory is created
// lazily on first append.
func NewSessionLog(dir string) *SessionLog {
	return &SessionLog{dir: dir}
}

func (l *SessionLog) path(sessionID string) string {
	return filepath.Join(l.dir, sessionID+".jsonl")
}

// Append writes one turn to the session's log file.
func (l *SessionLog) Append(sessionID string, t Turn) error {
	if !ValidSessionID(sessionID) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}

	line, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding turn: %w", err)
	}

	f, err := os.OpenFile(l.path(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing turn: %w", err)
	}
	return nil
}

// Read returns the session's turns, oldest first, keeping only the last
// maxHistory entries when maxHistory > 0. A missing session reads as empty.
// Malformed lines are skipped.
func (l *SessionLog) Read(sessionID string, maxHistory int) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, nil
	}

	f, err := os.Open(l.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	var turns []Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var t Turn
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session log: %w", err)
	}

	if maxHistory > 0 && len(turns) > maxHistory {
		turns = turns[len(turns)-maxHistory:]
	}
	return turns, nil
}

// Clear removes the session's log file. Clearing an unknown session is a no-op.
func (l *SessionLog) Clear(sessionID string) error {
	if !ValidSessionID(sessionID) {
		return nil
	}
	if err := os.Remove(l.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session log: %w", err)
	}
	return nil
}

// ClearAll removes every session log file in the storage directory.
func (l *SessionLog) ClearAll() error {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("listing session logs: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", filepath.Base(m), err)
		}
	}
	return nil
}

// Sessions returns the turn count per known session ID.
func (l *SessionLog) Sessions() (map[string]int, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing session logs: %w", err)
	}

	counts := make(map[string]int, len(matches))
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), ".jsonl")
		if !ValidSessionID(id) {
			continue
		}
		turns, err := l.Read(id, 0)
		if err != nil {
			return nil, err
		}
		counts[id] = len(turns)
	}
	return counts, nil
}
