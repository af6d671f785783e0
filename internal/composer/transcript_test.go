package composer

import (
	"strings"
	"testing"

	"github.com/kalambet/relay/internal/memory"
)

func turn(prompt, response string) memory.Turn {
	return memory.Turn{Role: "user", Prompt: prompt, Response: response}
}

func TestRenderTranscript_Empty(t *testing.T) {
	c := New(4000)
	if got := c.RenderTranscript(nil); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestRenderTranscript_Format(t *testing.T) {
	c := New(4000)

	got := c.RenderTranscript([]memory.Turn{
		turn("what is Go", "a programming language"),
		turn("who made it", "Google"),
	})

	want := "Previous conversation:\n" +
		"User: what is Go\nAssistant: a programming language\n" +
		"User: who made it\nAssistant: Google"
	if got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

func TestRenderTranscript_BudgetDropsOldest(t *testing.T) {
	c := New(60) // roughly 240 chars

	turns := []memory.Turn{
		turn("old "+strings.Repeat("x", 150), "reply"),
		turn("recent question", "recent answer"),
	}

	got := c.RenderTranscript(turns)
	if !strings.Contains(got, "recent question") {
		t.Error("most recent turn dropped")
	}
	if strings.Contains(got, "old ") {
		t.Error("oldest turn kept despite exceeding budget")
	}
	if tokens := EstimateTokens(got); tokens > 60 {
		t.Errorf("transcript exceeds token budget: %d tokens", tokens)
	}
}

func TestRenderTranscript_BudgetExhausted(t *testing.T) {
	c := New(5)

	got := c.RenderTranscript([]memory.Turn{
		turn(strings.Repeat("x", 200), strings.Repeat("y", 200)),
	})
	if got != "" {
		t.Errorf("got %q, want empty when nothing fits", got)
	}
}

func TestMerge(t *testing.T) {
	if got := Merge("", "hello"); got != "hello" {
		t.Errorf("Merge with empty transcript = %q, want %q", got, "hello")
	}

	got := Merge("Previous conversation:\nUser: a\nAssistant: b", "hello")
	want := "Previous conversation:\nUser: a\nAssistant: b\n\nhello"
	if got != want {
		t.Errorf("Merge = %q, want %q", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
