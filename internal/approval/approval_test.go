package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "approvals.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRecordAndRecent(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{TS: base, Tool: "read_file", ToolID: "t1", Outcome: OutcomeAuto, Approved: true, Policy: "on-request"},
		{TS: base.Add(time.Minute), Tool: "run_shell", ToolID: "t2", Args: map[string]any{"cmd": "rm -rf build"}, Outcome: OutcomeDenied, Reason: "risk=destructive", Policy: "on-request"},
		{TS: base.Add(2 * time.Minute), Tool: "run_shell", ToolID: "t3", Args: map[string]any{"cmd": "make"}, Outcome: OutcomeApproved, Approved: true, Reason: "risk=write", Policy: "on-request"},
	}
	for _, rec := range records {
		if err := h.Record(ctx, rec); err != nil {
			t.Fatalf("Record(%s) error = %v", rec.ToolID, err)
		}
	}

	got, err := h.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() returned %d records, want 3", len(got))
	}
	if got[0].ToolID != "t3" || got[1].ToolID != "t2" || got[2].ToolID != "t1" {
		t.Errorf("Recent() order = %s, %s, %s, want t3, t2, t1", got[0].ToolID, got[1].ToolID, got[2].ToolID)
	}
	if got[0].Outcome != OutcomeApproved || !got[0].Approved {
		t.Errorf("Recent()[0] outcome = %q approved=%v, want %q approved=true", got[0].Outcome, got[0].Approved, OutcomeApproved)
	}
	if got[1].Args["cmd"] != "rm -rf build" {
		t.Errorf("Recent()[1] args cmd = %v, want rm -rf build", got[1].Args["cmd"])
	}
	if got[1].Reason != "risk=destructive" {
		t.Errorf("Recent()[1] reason = %q, want risk=destructive", got[1].Reason)
	}
	if got[2].Args != nil {
		t.Errorf("Recent()[2] args = %v, want nil", got[2].Args)
	}
	if !got[2].TS.Equal(base) {
		t.Errorf("Recent()[2] ts = %v, want %v", got[2].TS, base)
	}
}

func TestRecentLimit(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := Record{TS: base.Add(time.Duration(i) * time.Second), Tool: "git", Outcome: OutcomeAuto}
		if err := h.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	got, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent(2) error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Recent(2) returned %d records, want 2", len(got))
	}
}

func TestRecentBreaksTiesByInsertionOrder(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"first", "second"} {
		if err := h.Record(ctx, Record{TS: ts, Tool: "tmux", ToolID: id, Outcome: OutcomeDeferred}); err != nil {
			t.Fatalf("Record(%s) error = %v", id, err)
		}
	}
	got, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if got[0].ToolID != "second" || got[1].ToolID != "first" {
		t.Errorf("Recent() order = %s, %s, want second, first", got[0].ToolID, got[1].ToolID)
	}
}

func TestRecordStampsZeroTime(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if err := h.Record(ctx, Record{Tool: "web_search", Outcome: OutcomeAuto}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, err := h.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(got))
	}
	if got[0].TS.Before(before) {
		t.Errorf("Recent()[0] ts = %v, want stamped at insert time", got[0].TS)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		rec := Record{TS: base.Add(time.Duration(i) * time.Hour), Tool: "git", Outcome: OutcomeAuto}
		if err := h.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	n, err := h.PurgeOlderThan(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("PurgeOlderThan() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PurgeOlderThan() removed %d records, want 2", n)
	}
	got, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Recent() returned %d records after purge, want 2", len(got))
	}
}

func TestHistoryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.db")
	ctx := context.Background()

	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	rec := Record{Tool: "manage_service", ToolID: "t9", Outcome: OutcomeResolved, Approved: true, Policy: "always"}
	if err := h.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	h2, err := Open(path)
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	defer h2.Close()
	got, err := h2.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(got))
	}
	if got[0].Tool != "manage_service" || got[0].Outcome != OutcomeResolved || !got[0].Approved || got[0].Policy != "always" {
		t.Errorf("Recent()[0] = %+v, want persisted record", got[0])
	}
}
