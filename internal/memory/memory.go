// Package memory implements the agent's persistent note store with
// local vector search. Entries live under config_dir in either a
// JSONL file or a SQLite database; both backends share the same
// embedding so they rank identically.
package memory

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentd-dev/agentd/internal/config"
)

// Dim is the embedding dimensionality.
const Dim = 256

// Entry is one stored memory.
type Entry struct {
	ID   string         `json:"id"`
	TS   string         `json:"ts"`
	Text string         `json:"text"`
	Tags []string       `json:"tags"`
	Meta map[string]any `json:"meta"`
	Vec  []float64      `json:"vec"`
}

// Scored pairs an entry with its cosine similarity to a query.
type Scored struct {
	Entry
	Score float64
}

// Update describes a partial change to an entry. Nil fields keep the
// current value.
type Update struct {
	Text *string
	Tags *[]string
	Meta *map[string]any
}

// Store is the persistence contract shared by the backends.
type Store interface {
	Add(ctx context.Context, text string, tags []string, meta map[string]any) (Entry, error)
	List(ctx context.Context, limit int, tag string) ([]Entry, error)
	Search(ctx context.Context, query string, topK int, tag string) ([]Scored, error)
	Delete(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, change Update) (bool, error)
}

// Open returns the store selected by cfg.MemoryBackend, rooted under
// cfg.ConfigDir.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.MemoryBackend {
	case config.MemoryJSONL:
		return NewJSONL(cfg.ConfigDir), nil
	case config.MemorySQLite:
		return OpenSQLite(filepath.Join(cfg.ConfigDir, "memory.db"))
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.MemoryBackend)
	}
}

// Embed maps text onto a fixed-size bag-of-tokens vector: each
// whitespace-split, lowercased token is hashed (SHA-1, first 8 bytes
// as a big-endian integer) into one of Dim buckets, then the vector
// is L2-normalized. Deterministic and offline by construction.
func Embed(text string) []float64 {
	vec := make([]float64, Dim)
	for _, tok := range strings.Fields(text) {
		sum := sha1.Sum([]byte(strings.ToLower(tok)))
		idx := binary.BigEndian.Uint64(sum[:8]) % Dim
		vec[idx]++
	}
	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Cosine returns the dot product of two normalized vectors.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// rank scores entries against a query and returns the top k, highest
// first. Entries missing a vector are embedded from their text on the
// fly. Ties keep insertion order.
func rank(entries []Entry, query string, topK int) []Scored {
	q := Embed(query)
	scored := make([]Scored, 0, len(entries))
	for _, e := range entries {
		vec := e.Vec
		if len(vec) == 0 {
			vec = Embed(e.Text)
		}
		scored = append(scored, Scored{Entry: e, Score: Cosine(q, vec)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// filterTag keeps entries carrying the tag; an empty tag keeps all.
func filterTag(entries []Entry, tag string) []Entry {
	if tag == "" {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		for _, t := range e.Tags {
			if t == tag {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// tail returns the last limit entries, preserving order.
func tail(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
