package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/relay/internal/dispatch"
	"github.com/kalambet/relay/internal/memory"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds the components the HTTP surface exposes.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Memory     *memory.Store
	Token      string
}

// NewHandler returns the REST surface: a public health probe and chat
// endpoint, plus bearer-authenticated session management routes.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Post("/api/chat", handleChat(deps))

	r.Group(func(g chi.Router) {
		g.Use(BearerAuth(deps.Token))
		g.Get("/api/sessions", handleListSessions(deps))
		g.Delete("/api/sessions", handleClearAllSessions(deps))
		g.Get("/api/sessions/{id}", handleShowSession(deps))
		g.Delete("/api/sessions/{id}", handleClearSession(deps))
		g.Get("/api/recall", handleRecall(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := "off"
		if deps.Memory != nil && deps.Memory.Enabled() {
			mode = deps.Memory.Mode()
		}
		writeJSON(w, map[string]string{
			"status":  "ok",
			"backend": string(deps.Dispatcher.Backend().Kind()),
			"memory":  mode,
		})
	}
}

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
	Context   string `json:"context"`
}

// ChatResponse is the POST /api/chat reply. Memory is set only when the turn
// did not persist cleanly.
type ChatResponse struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	SessionID string `json:"session_id,omitempty"`
	Memory    string `json:"memory,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Prompt == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}
		if req.SessionID != "" && !memory.ValidSessionID(req.SessionID) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid session_id")
			return
		}

		reply, err := deps.Dispatcher.Dispatch(r.Context(), dispatch.Request{
			Prompt:    req.Prompt,
			SessionID: req.SessionID,
			Context:   req.Context,
		})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "%v", err)
			return
		}

		resp := ChatResponse{
			Response:  reply.Text,
			Model:     reply.Model,
			SessionID: req.SessionID,
		}
		if reply.Memory.Status != memory.WriteOK {
			resp.Memory = reply.Memory.Status.String()
		}
		writeJSON(w, resp)
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := deps.Memory.Sessions(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		type session struct {
			ID    string `json:"id"`
			Turns int    `json:"turns"`
		}
		sessions := make([]session, 0, len(infos))
		for _, info := range infos {
			sessions = append(sessions, session{ID: info.ID, Turns: info.Turns})
		}
		writeJSON(w, map[string]any{"sessions": sessions})
	}
}

func handleShowSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !memory.ValidSessionID(id) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid session id")
			return
		}

		turns, err := deps.Memory.History(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read session: %v", err)
			return
		}
		if len(turns) == 0 {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		writeJSON(w, map[string]any{
			"id":    id,
			"turns": renderTurns(turns),
		})
	}
}

func handleClearSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !memory.ValidSessionID(id) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid session id")
			return
		}

		if err := deps.Memory.Clear(r.Context(), id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear session: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared", "id": id})
	}
}

func handleClearAllSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Memory.ClearAll(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear sessions: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

func handleRecall(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 5, 50)

		turns := deps.Memory.RetrieveSimilar(r.Context(), query, limit)
		writeJSON(w, map[string]any{
			"mode":    deps.Memory.Mode(),
			"results": renderTurns(turns),
		})
	}
}

// TurnView is the wire representation of one stored turn.
type TurnView struct {
	Timestamp string `json:"timestamp"`
	Role      string `json:"role"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
}

func renderTurns(turns []memory.Turn) []TurnView {
	views := make([]TurnView, 0, len(turns))
	for _, t := range turns {
		views = append(views, TurnView{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Role:      t.Role,
			Model:     t.Model,
			Prompt:    t.Prompt,
			Response:  t.Response,
		})
	}
	return views
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
