package dispatch

import (
	"context"
	"log/slog"

	"github.com/kalambet/relay/internal/composer"
	"github.com/kalambet/relay/internal/memory"
)

// Memory is the slice of the memory store the dispatcher needs.
type Memory interface {
	Enabled() bool
	Read(ctx context.Context, sessionID string) []memory.Turn
	Append(ctx context.Context, sessionID string, t memory.Turn) memory.AppendResult
}

// Request carries one prompt through dispatch.
type Request struct {
	Prompt    string
	SessionID string

	// Context, when set, is used verbatim as the conversation preamble and
	// memory reconstruction is skipped.
	Context string
}

// Reply is the outcome of a successful dispatch. Memory reports how the turn
// was persisted; a degraded or failed write never invalidates the response.
type Reply struct {
	Text   string
	Model  string
	Memory memory.AppendResult
}

// Dispatcher routes prompts to the bound backend, reconstructing session
// context on the way in and appending the new turn on the way out.
type Dispatcher struct {
	backend  Backend
	memory   Memory
	composer *composer.Composer
	logger   *slog.Logger
}

// New creates a Dispatcher. mem may be nil when memory is disabled entirely.
func New(backend Backend, mem Memory, comp *composer.Composer, logger *slog.Logger) *Dispatcher {
	if comp == nil {
		comp = composer.New(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{backend: backend, memory: mem, composer: comp, logger: logger}
}

// Backend returns the bound backend.
func (d *Dispatcher) Backend() Backend {
	return d.backend
}

// Dispatch sends one prompt to the backend and returns its reply.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Reply, error) {
	transcript := req.Context
	if transcript == "" && d.remembers(req.SessionID) {
		turns := d.memory.Read(ctx, req.SessionID)
		transcript = d.composer.RenderTranscript(turns)
	}
	full := composer.Merge(transcript, req.Prompt)

	text, err := d.backend.Invoke(ctx, full)
	if err != nil {
		return Reply{Model: d.backend.Model()}, classify(d.backend.Kind(), d.backend.Model(), err)
	}

	reply := Reply{Text: text, Model: d.backend.Model()}
	if d.remembers(req.SessionID) {
		res := d.memory.Append(ctx, req.SessionID, memory.Turn{
			Model:    reply.Model,
			Prompt:   req.Prompt,
			Response: text,
		})
		if res.Status != memory.WriteOK {
			d.logger.Warn("turn not fully persisted",
				"session", req.SessionID,
				"status", res.Status.String(),
				"error", res.Err,
			)
		}
		reply.Memory = res
	}
	return reply, nil
}

func (d *Dispatcher) remembers(sessionID string) bool {
	return sessionID != "" && d.memory != nil && d.memory.Enabled()
}
