// Package cloudtoken manages the cookie token used by the cloud data tool.
package cloudtoken

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxTokenAge is how long a token file is trusted before it is considered
// stale and must be renewed.
const maxTokenAge = 10 * time.Minute

// Token is the cookie token persisted on disk.
type Token struct {
	ServiceToken        string `json:"serviceToken"`
	UserID              string `json:"userId"`
	IsValidServiceToken string `json:"i.mi.com_isvalid_servicetoken"`
	SLH                 string `json:"i.mi.com_slh"`
	FetchedAt           string `json:"fetched_at,omitempty"`
}

// Valid reports whether all required token fields are present.
func (t *Token) Valid() bool {
	return t != nil &&
		t.ServiceToken != "" &&
		t.UserID != "" &&
		t.IsValidServiceToken != "" &&
		t.SLH != ""
}

// Store persists tokens to a JSON file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the token file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the token from disk.
func (s *Store) Load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}

// Save writes the token to disk with restrictive permissions.
func (s *Store) Save(tok *Token) error {
	if tok.FetchedAt == "" {
		tok.FetchedAt = time.Now().Format(time.RFC3339)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Healthy reports whether the token file exists, is fresh and carries all
// required fields.
func (s *Store) Healthy() bool {
	info, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) >= maxTokenAge {
		return false
	}
	tok, err := s.Load()
	if err != nil {
		return false
	}
	return tok.Valid()
}
