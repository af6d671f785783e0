package memory

import "time"

// Turn is one prompt/response exchange within a session. Turns are persisted
// as JSON Lines, one object per line, with this exact field set.
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
}
