package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/relay/internal/memory"
)

const defaultMaxContextTokens = 4000

// Composer renders session history into a transcript preamble for the
// dispatcher, respecting a token budget for injected context.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// RenderTranscript formats turns, oldest first, as a "Previous conversation:"
// block. When the history exceeds the token budget the oldest turns are
// dropped first. Empty history renders as an empty string.
func (c *Composer) RenderTranscript(turns []memory.Turn) string {
	if len(turns) == 0 {
		return ""
	}

	header := "Previous conversation:\n"
	remaining := c.MaxContextTokens - EstimateTokens(header)

	// Walk newest to oldest so the most recent turns survive the budget.
	entries := make([]string, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		entry := formatTurn(turns[i])
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			break
		}
		entries = append(entries, entry)
		remaining -= tokens
	}
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(header)
	for i := len(entries) - 1; i >= 0; i-- {
		sb.WriteString(entries[i])
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Merge prepends a rendered transcript to the prompt. An empty transcript
// leaves the prompt untouched.
func Merge(transcript, prompt string) string {
	if transcript == "" {
		return prompt
	}
	return transcript + "\n\n" + prompt
}

func formatTurn(t memory.Turn) string {
	return fmt.Sprintf("User: %s\nAssistant: %s\n", t.Prompt, t.Response)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
