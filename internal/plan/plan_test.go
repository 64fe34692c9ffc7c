package plan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateAndGet(t *testing.T) {
	store := NewStore(t.TempDir())

	created, err := store.Create("ship the feature", []string{"write code", "write tests"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create returned empty id")
	}

	got, err := store.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "ship the feature" {
		t.Errorf("Title = %q, want %q", got.Title, "ship the feature")
	}
	if len(got.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(got.Steps))
	}
	for i, want := range []string{"write code", "write tests"} {
		if got.Steps[i].Text != want {
			t.Errorf("Steps[%d].Text = %q, want %q", i, got.Steps[i].Text, want)
		}
		if got.Steps[i].Status != StatusPending {
			t.Errorf("Steps[%d].Status = %q, want %q", i, got.Steps[i].Status, StatusPending)
		}
	}
}

func TestGetMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, id := range []string{"nope", "", "../sneaky", `..\sneaky`} {
		if _, err := store.Get(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestListSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if _, err := store.Create("good", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	bad := filepath.Join(dir, "plans", "broken.json")
	if err := os.WriteFile(bad, []byte("{nope"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	plans, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(plans) != 1 || plans[0].Title != "good" {
		t.Errorf("List = %+v, want only the good plan", plans)
	}
}

func TestListEmpty(t *testing.T) {
	plans, err := NewStore(t.TempDir()).List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(plans) != 0 {
		t.Errorf("List on empty store = %+v", plans)
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	p, err := store.Create("temp", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := store.Delete(p.ID)
	if err != nil || !ok {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = store.Delete(p.ID)
	if err != nil || ok {
		t.Errorf("second Delete = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := store.Get(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestAddStep(t *testing.T) {
	store := NewStore(t.TempDir())
	p, err := store.Create("grow", []string{"first"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := store.AddStep(p.ID, "second")
	if err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	if len(updated.Steps) != 2 || updated.Steps[1].Text != "second" || updated.Steps[1].Status != StatusPending {
		t.Errorf("AddStep result = %+v", updated.Steps)
	}

	got, err := store.Get(p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Steps) != 2 {
		t.Errorf("persisted Steps = %+v, want 2 entries", got.Steps)
	}

	if _, err := store.AddStep("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddStep(missing) = %v, want ErrNotFound", err)
	}
}

func TestUpdateStep(t *testing.T) {
	store := NewStore(t.TempDir())
	p, err := store.Create("progress", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := store.UpdateStep(p.ID, 1, StatusDone)
	if err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}
	if updated.Steps[1].Status != StatusDone {
		t.Errorf("Steps[1].Status = %q, want %q", updated.Steps[1].Status, StatusDone)
	}

	got, err := store.Get(p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Steps[0].Status != StatusPending || got.Steps[1].Status != StatusDone {
		t.Errorf("persisted statuses = %q, %q", got.Steps[0].Status, got.Steps[1].Status)
	}

	if _, err := store.UpdateStep(p.ID, 5, StatusDone); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("UpdateStep(out of range) = %v, want out-of-range error", err)
	}
	if _, err := store.UpdateStep(p.ID, 0, "finished"); err == nil || !strings.Contains(err.Error(), "invalid status") {
		t.Errorf("UpdateStep(bad status) = %v, want invalid-status error", err)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusInProgress, StatusDone, StatusBlocked} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false", s)
		}
	}
	for _, s := range []string{"", "finished", "Pending"} {
		if ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = true", s)
		}
	}
}
