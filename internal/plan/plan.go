// Package plan persists lightweight task plans, one JSON file per plan
// under the agent's config directory.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const plansDir = "plans"

// Step statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusBlocked    = "blocked"
)

// ErrNotFound reports an unknown plan id.
var ErrNotFound = errors.New("plan: not found")

// Step is one unit of work inside a plan.
type Step struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

// Plan is a titled ordered list of steps.
type Plan struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// ValidStatus reports whether s is one of the step statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// Store reads and writes plan files under configDir/plans.
type Store struct {
	dir string
}

func NewStore(configDir string) *Store {
	return &Store{dir: filepath.Join(configDir, plansDir)}
}

// Create writes a new plan with every step pending and returns it.
func (s *Store) Create(title string, steps []string) (Plan, error) {
	p := Plan{ID: uuid.NewString(), Title: title, Steps: make([]Step, 0, len(steps))}
	for _, text := range steps {
		p.Steps = append(p.Steps, Step{Text: text, Status: StatusPending})
	}
	if err := s.write(p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Get loads one plan. Unknown ids return ErrNotFound.
func (s *Store) Get(id string) (Plan, error) {
	if badID(id) {
		return Plan{}, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return Plan{}, ErrNotFound
	}
	if err != nil {
		return Plan{}, fmt.Errorf("plan: read %s: %w", id, err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("plan: decode %s: %w", id, err)
	}
	return p, nil
}

// List returns every readable plan, lexically ordered by file name.
// Unreadable or corrupt files are skipped.
func (s *Store) List() ([]Plan, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("plan: list: %w", err)
	}
	var plans []Plan
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		var p Plan
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// Delete removes a plan file. It reports false when the id is unknown.
func (s *Store) Delete(id string) (bool, error) {
	if badID(id) {
		return false, nil
	}
	err := os.Remove(filepath.Join(s.dir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("plan: delete %s: %w", id, err)
	}
	return true, nil
}

// AddStep appends a pending step and returns the updated plan.
func (s *Store) AddStep(id, text string) (Plan, error) {
	p, err := s.Get(id)
	if err != nil {
		return Plan{}, err
	}
	p.Steps = append(p.Steps, Step{Text: text, Status: StatusPending})
	if err := s.write(p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// UpdateStep sets the status of one step and returns the updated plan.
func (s *Store) UpdateStep(id string, index int, status string) (Plan, error) {
	if !ValidStatus(status) {
		return Plan{}, fmt.Errorf("plan: invalid status %q", status)
	}
	p, err := s.Get(id)
	if err != nil {
		return Plan{}, err
	}
	if index < 0 || index >= len(p.Steps) {
		return Plan{}, fmt.Errorf("plan: step index %d out of range", index)
	}
	p.Steps[index].Status = status
	if err := s.write(p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func (s *Store) write(p Plan) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("plan: create %s: %w", s.dir, err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("plan: encode %s: %w", p.ID, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, p.ID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("plan: write %s: %w", p.ID, err)
	}
	return nil
}

// badID rejects ids that would resolve outside the plans directory.
// Generated ids are UUIDs; anything with a path separator is foreign.
func badID(id string) bool {
	return id == "" || strings.ContainsAny(id, `/\`)
}
