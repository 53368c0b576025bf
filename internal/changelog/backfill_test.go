package changelog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aisessions/internal/evaluator"
)

func TestDeriveSessionLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"20250601T120000_fix_login_2", "fix login"},
		{"20250601T120000_fix_login", "fix login"},
		{"20250601T120000_refactor", "refactor"},
		{"nolabel", ""},
	}
	for _, tc := range cases {
		if got := DeriveSessionLabel(tc.in); got != tc.want {
			t.Fatalf("DeriveSessionLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestChooseCopiedJSONLPrefersNativeTranscripts(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write("events.jsonl", strings.Repeat("x", 9000))
	write("export_runs.jsonl", strings.Repeat("x", 5000))
	write("notes.jsonl", strings.Repeat("x", 8000))
	write("rollout-2025-06-01.jsonl", strings.Repeat("x", 100))

	got := chooseCopiedJSONL(dir)
	if filepath.Base(got) != "rollout-2025-06-01.jsonl" {
		t.Fatalf("expected the native rollout copy, got %q", got)
	}

	if err := os.Remove(filepath.Join(dir, "rollout-2025-06-01.jsonl")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got = chooseCopiedJSONL(dir)
	if filepath.Base(got) != "notes.jsonl" {
		t.Fatalf("expected the largest remaining copy, got %q", got)
	}
}

func TestApplyLimitTruncatesAcrossSessions(t *testing.T) {
	work := []sessionWork{
		{Dir: "a", Runs: []runSpec{{Start: "1"}, {Start: "2"}}},
		{Dir: "b", Runs: []runSpec{{Start: "3"}, {Start: "4"}}},
		{Dir: "c", Runs: []runSpec{{Start: "5"}}},
	}

	limited := applyLimit(work, 3)
	if len(limited) != 2 {
		t.Fatalf("expected 2 work units, got %d", len(limited))
	}
	if len(limited[0].Runs) != 2 || len(limited[1].Runs) != 1 {
		t.Fatalf("unexpected run split: %d/%d", len(limited[0].Runs), len(limited[1].Runs))
	}

	if got := applyLimit(work, 0); len(got) != 3 {
		t.Fatalf("zero limit must keep everything")
	}
}

func TestBackfillDiscoversAndAppends(t *testing.T) {
	root := t.TempDir()
	sessionDir := filepath.Join(root, ".codex", "sessions", "20250601T100000_fix_login")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	source := filepath.Join(sessionDir, "rollout-2025-06-01.jsonl")
	if err := os.WriteFile(source, []byte(rolloutFixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	ledger := NewLedger(root)
	eval := &stubEvaluator{out: evaluator.Output{
		Summary: "Fixed the login redirect",
		Bullets: []string{"preserve query string on redirect"},
	}}
	opts := BackfillOptions{
		ProjectRoot: root,
		Actor:       "dev@example.com",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	summary, err := Backfill(context.Background(), ledger, eval, opts)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if summary.Processed != 1 || summary.Appended != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	data, err := os.ReadFile(ledger.EntriesPath(opts.Actor))
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	if !strings.Contains(string(data), `"label":"fix login"`) {
		t.Fatalf("entry missing derived label: %s", data)
	}
	if !strings.Contains(string(data), `"tool":"codex"`) {
		t.Fatalf("entry missing guessed tool: %s", data)
	}

	// The sweep is idempotent.
	summary, err = Backfill(context.Background(), ledger, eval, opts)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if summary.Appended != 0 || summary.Skipped != 1 {
		t.Fatalf("expected the re-run to skip, got %+v", summary)
	}
}

func TestBackfillHaltsOnUsageLimit(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"20250601T100000_first", "20250602T100000_second"} {
		dir := filepath.Join(root, ".codex", "sessions", name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		source := filepath.Join(dir, "rollout-2025-06-01.jsonl")
		if err := os.WriteFile(source, []byte(rolloutFixture), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	ledger := NewLedger(root)
	eval := &stubEvaluator{err: &evaluator.OutputError{Tool: "stub", Reason: "usage_limit_reached"}}
	opts := BackfillOptions{
		ProjectRoot: root,
		Actor:       "dev@example.com",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	summary, err := Backfill(context.Background(), ledger, eval, opts)
	if err != nil {
		t.Fatalf("Backfill returned an error on halt: %v", err)
	}
	if !summary.Halted {
		t.Fatalf("expected halted summary, got %+v", summary)
	}
	if summary.Processed != 1 {
		t.Fatalf("expected processing to stop after the first run, got %+v", summary)
	}
}

func TestBackfillDryRunTouchesNothing(t *testing.T) {
	root := t.TempDir()
	sessionDir := filepath.Join(root, ".codex", "sessions", "20250601T100000_fix_login")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	source := filepath.Join(sessionDir, "rollout-2025-06-01.jsonl")
	if err := os.WriteFile(source, []byte(rolloutFixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	ledger := NewLedger(root)
	eval := &stubEvaluator{}
	summary, err := Backfill(context.Background(), ledger, eval, BackfillOptions{
		ProjectRoot: root,
		Actor:       "dev@example.com",
		DryRun:      true,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if summary.Processed != 1 || summary.Appended != 0 {
		t.Fatalf("unexpected dry-run summary: %+v", summary)
	}
	if eval.calls != 0 {
		t.Fatalf("dry run must not call the evaluator")
	}
	if _, err := os.Stat(ledger.Dir()); !os.IsNotExist(err) {
		t.Fatalf("dry run must not create the ledger directory")
	}
}
