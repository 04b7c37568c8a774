// Package server exposes the agent over an OpenAI-style HTTP API with
// JSON and SSE responses.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aidesk/aidesk/internal/agent"
	"github.com/aidesk/aidesk/internal/session"
	"github.com/aidesk/aidesk/internal/tools"
)

// Response envelope codes.
const (
	codeOK         = 0
	codeBadRequest = -1000
	codeInternal   = -2000
)

// Options configures the Server.
type Options struct {
	Sessions    *session.Manager
	Registry    *tools.Registry
	APIKey      string
	Defaults    agent.ProcessOptions
	TokenHealth func() bool
	Version     string
	Logger      *slog.Logger
}

// Server handles the /api/v1 surface.
type Server struct {
	sessions    *session.Manager
	registry    *tools.Registry
	apiKey      string
	defaults    agent.ProcessOptions
	tokenHealth func() bool
	version     string
	logger      *slog.Logger
	started     time.Time
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		sessions:    opts.Sessions,
		registry:    opts.Registry,
		apiKey:      opts.APIKey,
		defaults:    opts.Defaults,
		tokenHealth: opts.TokenHealth,
		version:     opts.Version,
		logger:      opts.Logger,
		started:     time.Now(),
	}
}

// Handler returns the routed handler with API key enforcement.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat/completions", s.handleChat)
	mux.HandleFunc("DELETE /api/v1/chat/session/{id}", s.handleClearSession)
	mux.HandleFunc("GET /api/v1/chat/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/tools", s.handleTools)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	return s.withAuth(mux)
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("api server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				writeEnvelope(w, http.StatusUnauthorized, codeBadRequest, "invalid api key", nil)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model,omitempty"`
	Messages         []chatMessage `json:"messages"`
	SessionID        string        `json:"session_id,omitempty"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, codeBadRequest, "invalid request body", nil)
		return
	}

	// The last user message drives the turn.
	message := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			message = req.Messages[i].Content
			break
		}
	}
	if message == "" {
		writeEnvelope(w, http.StatusBadRequest, codeBadRequest, "no user message provided", nil)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	opts := s.defaults
	if req.Model != "" {
		opts.Model = req.Model
	}
	if req.Temperature > 0 {
		opts.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts.MaxTokens = req.MaxTokens
	}
	if req.TopP > 0 {
		opts.TopP = req.TopP
	}
	if req.FrequencyPenalty != 0 {
		opts.FrequencyPenalty = req.FrequencyPenalty
	}
	if req.PresencePenalty != 0 {
		opts.PresencePenalty = req.PresencePenalty
	}

	a := s.sessions.Get(sessionID)

	if req.Stream {
		s.streamChat(w, r, a, sessionID, message, opts)
		return
	}

	answer := a.Process(r.Context(), message, opts)
	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn("session save failed", "session", sessionID, "error", err)
	}
	writeEnvelope(w, http.StatusOK, codeOK, "success", map[string]any{
		"response":             answer,
		"session_id":           sessionID,
		"conversation_history": a.History(),
	})
}

// chunk is one SSE frame in the chat.completion.chunk format.
type chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, a *agent.Agent, sessionID, message string, opts agent.ProcessOptions) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeEnvelope(w, http.StatusInternalServerError, codeInternal, "streaming unsupported", nil)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	chunkID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	model := opts.Model

	send := func(c chunk) {
		data, err := json.Marshal(c)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	// Role preamble.
	send(chunk{
		ID: chunkID, Object: "chat.completion.chunk", Created: created, Model: model,
		Choices: []chunkChoice{{Delta: chunkDelta{Role: "assistant"}}},
	})

	for ev := range a.ProcessStream(r.Context(), message, opts) {
		// Every event yields a chunk. Intermediate events (thinking, steps,
		// recoverable errors) carry an empty delta so clients see progress
		// frames instead of a silent connection.
		content := ""
		if ev.Type == agent.EventResponse {
			content = ev.Content
		}
		send(chunk{
			ID: chunkID, Object: "chat.completion.chunk", Created: created, Model: model,
			Choices: []chunkChoice{{Delta: chunkDelta{Content: content}}},
		})
	}

	stop := "stop"
	send(chunk{
		ID: chunkID, Object: "chat.completion.chunk", Created: created, Model: model,
		Choices: []chunkChoice{{Delta: chunkDelta{}, FinishReason: &stop}},
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn("session save failed", "session", sessionID, "error", err)
	}
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existed := s.sessions.Clear(id)
	writeEnvelope(w, http.StatusOK, codeOK, "success", map[string]any{
		"session_id": id,
		"cleared":    existed,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	history, ok := s.sessions.History(id)
	if !ok {
		history = []agent.Message{}
	}
	writeEnvelope(w, http.StatusOK, codeOK, "success", map[string]any{
		"session_id": id,
		"history":    history,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	defs := s.registry.Definitions()
	writeEnvelope(w, http.StatusOK, codeOK, "success", map[string]any{
		"tools": defs,
		"count": len(defs),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tokenHealthy := false
	if s.tokenHealth != nil {
		tokenHealthy = s.tokenHealth()
	}
	writeEnvelope(w, http.StatusOK, codeOK, "success", map[string]any{
		"version":             s.version,
		"uptime_seconds":      int(time.Since(s.started).Seconds()),
		"sessions":            s.sessions.Count(),
		"cloud_token_healthy": tokenHealthy,
	})
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
		"data":    data,
	})
}
