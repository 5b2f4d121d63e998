// Package filters manages config/filters.json: the human-edited, repo
// versioned list of search filters. The only runtime mutation is the
// per-filter "active" toggle, written atomically (temp file + rename)
// with a prior backup, matching the config writer's contract.
package filters

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

// Filter is a named set of upstream search parameters driving one
// periodic load. It is never stored in the database.
type Filter struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Type   string         `json:"type,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

type document struct {
	Filters []Filter `json:"filters"`
}

// Store guards concurrent access to the filters file.
type Store struct {
	mu     sync.Mutex
	path   string
	schema *jsonschema.Schema
}

// NewStore compiles the embedded schema and binds the store to path.
func NewStore(path string) (*Store, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("filters.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("filters: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("filters.schema.json")
	if err != nil {
		return nil, fmt.Errorf("filters: compile schema: %w", err)
	}
	return &Store{path: path, schema: schema}, nil
}

// Load reads and validates filters.json, defaulting "active" from the
// legacy "enabled" key when "active" was not set.
func (s *Store) Load() ([]Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]Filter, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filters: read: %w", err)
	}

	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("filters: parse: %w", err)
	}
	if err := s.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("filters: schema validation: %w", err)
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("filters: decode: %w", err)
	}

	var legacy struct {
		Filters []struct {
			Active  *bool `json:"active"`
			Enabled *bool `json:"enabled"`
		} `json:"filters"`
	}
	if err := json.Unmarshal(b, &legacy); err == nil {
		for i, lf := range legacy.Filters {
			if i < len(doc.Filters) && lf.Active == nil && lf.Enabled != nil {
				doc.Filters[i].Active = *lf.Enabled
			}
		}
	}
	return doc.Filters, nil
}

func (s *Store) writeLocked(list []Filter) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filters: mkdir: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		backupPath := s.path + ".bak." + time.Now().UTC().Format("20060102150405")
		existing, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("filters: read existing for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, existing, 0o644); err != nil {
			return fmt.Errorf("filters: write backup: %w", err)
		}
	}

	b, err := json.MarshalIndent(document{Filters: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("filters: marshal: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "filters.json.tmp.*")
	if err != nil {
		return fmt.Errorf("filters: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filters: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filters: close temp: %w", err)
	}
	return os.Rename(tmpName, s.path)
}

// SetActive toggles a single filter's active flag by id.
func (s *Store) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked()
	if err != nil {
		return err
	}
	found := false
	for i := range list {
		if list[i].ID == id {
			list[i].Active = active
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("filters: unknown filter id %q", id)
	}
	return s.writeLocked(list)
}

// ToggleAll sets every filter's active flag to enable.
func (s *Store) ToggleAll(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range list {
		list[i].Active = enable
	}
	return s.writeLocked(list)
}

// Invert flips every filter's active flag.
func (s *Store) Invert() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range list {
		list[i].Active = !list[i].Active
	}
	return s.writeLocked(list)
}
