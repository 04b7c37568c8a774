// Package session maps session ids to agents and persists their
// conversation history as JSONL files.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aidesk/aidesk/internal/agent"
)

// Factory creates the agent for a new session id.
type Factory func(sessionID string) *agent.Agent

// Info describes a persisted session.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  int       `json:"messages"`
}

// Manager owns the id-to-agent map. Agents are created lazily on first
// Get and live until Clear; unknown ids never error.
type Manager struct {
	dir     string
	factory Factory
	logger  *slog.Logger

	mu      sync.RWMutex
	agents  map[string]*agent.Agent
	created map[string]time.Time
}

// NewManager creates a Manager persisting sessions under dir.
func NewManager(dir string, factory Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	os.MkdirAll(dir, 0755)
	return &Manager{
		dir:     dir,
		factory: factory,
		logger:  logger,
		agents:  make(map[string]*agent.Agent),
		created: make(map[string]time.Time),
	}
}

// Get returns the agent for id, creating it on first use. A previously
// persisted history is restored into the fresh agent.
func (m *Manager) Get(id string) *agent.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.agents[id]; ok {
		return a
	}

	a := m.factory(id)
	if history, created, err := m.loadHistory(id); err == nil {
		a.SetHistory(history)
		m.created[id] = created
	} else {
		m.created[id] = time.Now()
	}
	m.agents[id] = a
	m.logger.Info("session created", "session", id)
	return a
}

// Peek returns the agent for id without creating one.
func (m *Manager) Peek(id string) (*agent.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

// History returns the conversation history for id, checking memory first
// and falling back to the persisted file.
func (m *Manager) History(id string) ([]agent.Message, bool) {
	if a, ok := m.Peek(id); ok {
		return a.History(), true
	}
	history, _, err := m.loadHistory(id)
	if err != nil {
		return nil, false
	}
	return history, true
}

// Clear drops the session's conversation state and its persisted file.
// It reports whether anything existed for the id.
func (m *Manager) Clear(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.agents[id]
	if a, ok := m.agents[id]; ok {
		a.ClearHistory()
	}
	delete(m.agents, id)
	delete(m.created, id)

	if err := os.Remove(m.sessionPath(id)); err == nil {
		existed = true
	}
	if existed {
		m.logger.Info("session cleared", "session", id)
	}
	return existed
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// Save persists the session's conversation history to disk as JSONL:
// a metadata line followed by one line per message.
func (m *Manager) Save(id string) error {
	a, ok := m.Peek(id)
	if !ok {
		return fmt.Errorf("unknown session: %s", id)
	}
	history := a.History()

	m.mu.Lock()
	defer m.mu.Unlock()

	created, ok := m.created[id]
	if !ok {
		created = time.Now()
	}

	file, err := os.Create(m.sessionPath(id))
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer file.Close()

	meta := map[string]any{
		"_type":      "metadata",
		"session_id": id,
		"created_at": created.Format(time.RFC3339),
		"updated_at": time.Now().Format(time.RFC3339),
	}
	metaLine, _ := json.Marshal(meta)
	file.WriteString(string(metaLine) + "\n")

	for _, msg := range history {
		msgLine, _ := json.Marshal(msg)
		file.WriteString(string(msgLine) + "\n")
	}
	return nil
}

// List returns metadata for all persisted sessions.
func (m *Manager) List() []Info {
	var sessions []Info

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return sessions
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".jsonl")
		info := Info{ID: id}

		history, created, err := m.loadHistory(id)
		if err == nil {
			info.CreatedAt = created
			info.Messages = len(history)
			if n := len(history); n > 0 {
				info.UpdatedAt = history[n-1].Timestamp
			} else {
				info.UpdatedAt = created
			}
		}
		sessions = append(sessions, info)
	}
	return sessions
}

func (m *Manager) sessionPath(id string) string {
	safe := strings.ReplaceAll(id, ":", "_")
	// Strip path separators and traversal components to prevent path injection.
	safe = strings.ReplaceAll(safe, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, "..", "_")
	return filepath.Join(m.dir, filepath.Base(safe)+".jsonl")
}

func (m *Manager) loadHistory(id string) ([]agent.Message, time.Time, error) {
	file, err := os.Open(m.sessionPath(id))
	if err != nil {
		return nil, time.Time{}, err
	}
	defer file.Close()

	var history []agent.Message
	created := time.Now()
	decoder := json.NewDecoder(file)

	for decoder.More() {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			break
		}

		var check map[string]any
		if json.Unmarshal(raw, &check) == nil && check["_type"] == "metadata" {
			if s, ok := check["created_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					created = t
				}
			}
			continue
		}

		var msg agent.Message
		if json.Unmarshal(raw, &msg) == nil {
			history = append(history, msg)
		}
	}
	return history, created, nil
}
