package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memFile = "memory.jsonl"

// jsonlStore persists entries as one JSON object per line. Add
// appends; delete and update rewrite the whole file atomically via a
// temp file rename.
type jsonlStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONL returns a JSONL-backed store under configDir. The file is
// created on first write.
func NewJSONL(configDir string) Store {
	return &jsonlStore{path: filepath.Join(configDir, memFile)}
}

func (s *jsonlStore) Add(_ context.Context, text string, tags []string, meta map[string]any) (Entry, error) {
	if tags == nil {
		tags = []string{}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	entry := Entry{
		ID:   uuid.NewString(),
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
		Text: text,
		Tags: tags,
		Meta: meta,
		Vec:  Embed(text),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return Entry{}, fmt.Errorf("memory: create dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("memory: open %s: %w", s.path, err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("memory: marshal entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return Entry{}, fmt.Errorf("memory: append entry: %w", err)
	}
	return entry, nil
}

func (s *jsonlStore) List(_ context.Context, limit int, tag string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	return tail(filterTag(entries, tag), limit), nil
}

func (s *jsonlStore) Search(_ context.Context, query string, topK int, tag string) ([]Scored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	entries = filterTag(entries, tag)
	if len(entries) == 0 {
		return nil, nil
	}
	return rank(entries, query, topK), nil
}

func (s *jsonlStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return false, err
	}
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return false, nil
	}
	return true, s.rewrite(kept)
}

func (s *jsonlStore) Update(_ context.Context, id string, change Update) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return false, err
	}
	found := false
	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		applyUpdate(&entries[i], change)
		found = true
		break
	}
	if !found {
		return false, nil
	}
	return true, s.rewrite(entries)
}

func applyUpdate(e *Entry, change Update) {
	if change.Text != nil {
		e.Text = *change.Text
		e.Vec = Embed(*change.Text)
	}
	if change.Tags != nil {
		e.Tags = *change.Tags
	}
	if change.Meta != nil {
		e.Meta = *change.Meta
	}
}

// load reads all entries, skipping blank or corrupt lines.
func (s *jsonlStore) load() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: open %s: %w", s.path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("memory: read %s: %w", s.path, err)
	}
	return entries, nil
}

// rewrite replaces the file contents in one atomic rename.
func (s *jsonlStore) rewrite(entries []Entry) error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("memory: create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("memory: marshal entry: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("memory: write %s: %w", tmp, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("memory: flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("memory: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("memory: replace %s: %w", s.path, err)
	}
	return nil
}
