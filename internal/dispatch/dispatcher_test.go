package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/kalambet/relay/internal/composer"
	"github.com/kalambet/relay/internal/config"
	"github.com/kalambet/relay/internal/memory"
	"github.com/kalambet/relay/internal/openai"
)

type stubBackend struct {
	kind    Kind
	model   string
	reply   string
	err     error
	prompts []string
}

func (b *stubBackend) Kind() Kind    { return b.kind }
func (b *stubBackend) Model() string { return b.model }

func (b *stubBackend) Invoke(_ context.Context, prompt string) (string, error) {
	b.prompts = append(b.prompts, prompt)
	if b.err != nil {
		return "", b.err
	}
	return b.reply, nil
}

func testMemory(t *testing.T) *memory.Store {
	t.Helper()
	return memory.New(memory.Options{
		Enabled:     true,
		Mode:        memory.ModeSession,
		StoragePath: t.TempDir(),
		MaxHistory:  10,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil)
}

func TestDispatch_PingPong(t *testing.T) {
	backend := &stubBackend{kind: KindLocal, model: "llama3.2", reply: "PONG"}
	d := New(backend, testMemory(t), composer.New(4000), nil)
	ctx := context.Background()

	reply, err := d.Dispatch(ctx, Request{Prompt: "ping", SessionID: "work"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Text != "PONG" {
		t.Errorf("Text = %q, want %q", reply.Text, "PONG")
	}
	if reply.Model != "llama3.2" {
		t.Errorf("Model = %q, want %q", reply.Model, "llama3.2")
	}
	if reply.Memory.Status != memory.WriteOK {
		t.Errorf("Memory.Status = %v, want ok (%v)", reply.Memory.Status, reply.Memory.Err)
	}
	if backend.prompts[0] != "ping" {
		t.Errorf("first prompt = %q, want bare %q", backend.prompts[0], "ping")
	}

	// The second dispatch in the same session carries the transcript.
	if _, err := d.Dispatch(ctx, Request{Prompt: "ping again", SessionID: "work"}); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	got := backend.prompts[1]
	want := "Previous conversation:\nUser: ping\nAssistant: PONG\n\nping again"
	if got != want {
		t.Errorf("second prompt = %q, want %q", got, want)
	}
}

func TestDispatch_NoSession(t *testing.T) {
	backend := &stubBackend{kind: KindLocal, model: "llama3.2", reply: "hi"}
	d := New(backend, testMemory(t), composer.New(4000), nil)

	reply, err := d.Dispatch(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Text != "hi" {
		t.Errorf("Text = %q, want %q", reply.Text, "hi")
	}
	if backend.prompts[0] != "hello" {
		t.Errorf("prompt = %q, want bare prompt", backend.prompts[0])
	}
}

func TestDispatch_NilMemory(t *testing.T) {
	backend := &stubBackend{kind: KindLocal, model: "llama3.2", reply: "hi"}
	d := New(backend, nil, composer.New(4000), nil)

	if _, err := d.Dispatch(context.Background(), Request{Prompt: "hello", SessionID: "work"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestDispatch_PreRenderedContext(t *testing.T) {
	backend := &stubBackend{kind: KindLocal, model: "llama3.2", reply: "ok"}
	mem := testMemory(t)
	ctx := context.Background()

	// Seed history that must NOT be used when context is supplied.
	mem.Append(ctx, "work", memory.Turn{Prompt: "seeded", Response: "history"})

	d := New(backend, mem, composer.New(4000), nil)
	pre := "Previous conversation:\nUser: a\nAssistant: b"
	if _, err := d.Dispatch(ctx, Request{Prompt: "q", SessionID: "work", Context: pre}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got := backend.prompts[0]
	if !strings.HasPrefix(got, pre) {
		t.Errorf("prompt does not start with supplied context: %q", got)
	}
	if strings.Contains(got, "seeded") {
		t.Errorf("reconstructed history leaked into prompt: %q", got)
	}
}

func TestDispatch_BackendFailureSkipsAppend(t *testing.T) {
	backend := &stubBackend{kind: KindLocal, model: "llama3.2", err: errors.New("boom")}
	mem := testMemory(t)
	d := New(backend, mem, composer.New(4000), nil)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, Request{Prompt: "q", SessionID: "work"}); err == nil {
		t.Fatal("expected error")
	}
	if turns := mem.Read(ctx, "work"); len(turns) != 0 {
		t.Errorf("failed dispatch wrote %d turns", len(turns))
	}
}

func TestDispatch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", &openai.StatusError{Status: 401}, "authentication failed"},
		{"forbidden", &openai.StatusError{Status: 403}, "authentication failed"},
		{"model", &openai.StatusError{Status: 404}, `model "gpt-4-turbo" not found`},
		{"rate", &openai.StatusError{Status: 429}, "rate limited"},
		{"server", &openai.StatusError{Status: 500}, "request failed"},
		{"network", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, "cannot reach server"},
		{"other", errors.New("decoding response: EOF"), "request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &stubBackend{kind: KindOpenAI, model: "gpt-4-turbo", err: tt.err}
			d := New(backend, nil, nil, nil)

			_, err := d.Dispatch(context.Background(), Request{Prompt: "q"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
			if !errors.Is(err, tt.err) && !strings.Contains(err.Error(), tt.err.Error()) {
				t.Errorf("original cause lost: %q", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("openai"); err != nil || k != KindOpenAI {
		t.Errorf("ParseKind(openai) = %v, %v", k, err)
	}
	if k, err := ParseKind("local"); err != nil || k != KindLocal {
		t.Errorf("ParseKind(local) = %v, %v", k, err)
	}
	if _, err := ParseKind("bogus"); err == nil {
		t.Error("expected error for unknown selector")
	} else if !strings.Contains(err.Error(), `"bogus"`) {
		t.Errorf("error does not name the selector: %v", err)
	}
}

func TestFromConfig_InvalidSelector(t *testing.T) {
	cfg := config.Config{}
	cfg.Backend.Active = "bogus"

	if _, err := FromConfig(cfg); err == nil {
		t.Fatal("expected error for invalid backend selector")
	}
}

func TestFromConfig_MissingAPIKey(t *testing.T) {
	cfg := config.Config{}
	cfg.Backend.Active = "openai"
	cfg.OpenAI.Model = "gpt-4-turbo"

	_, err := FromConfig(cfg)
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "API key") {
		t.Errorf("error does not mention API key: %v", err)
	}
}

func TestFromConfig_Binds(t *testing.T) {
	cfg := config.Config{}
	cfg.Backend.Active = "openai"
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.Model = "gpt-4-turbo"

	b, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if b.Kind() != KindOpenAI || b.Model() != "gpt-4-turbo" {
		t.Errorf("bound %s/%s, want openai/gpt-4-turbo", b.Kind(), b.Model())
	}

	cfg.Backend.Active = "local"
	cfg.Local.BaseURL = "http://localhost:11434"
	cfg.Local.Model = "llama3.2"

	b, err = FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if b.Kind() != KindLocal || b.Model() != "llama3.2" {
		t.Errorf("bound %s/%s, want local/llama3.2", b.Kind(), b.Model())
	}
}
