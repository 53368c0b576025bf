package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func rolloutLine(ts, kind, payload string) string {
	return `{"timestamp":"` + ts + `","type":"` + kind + `","payload":` + payload + "}\n"
}

func writeSession(t *testing.T, dir, name, id, cwd, startTS, prompt string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(rolloutLine(startTS, "session_meta", `{"id":"`+id+`","cwd":"`+cwd+`"}`))
	b.WriteString(rolloutLine(startTS, "response_item",
		`{"type":"message","role":"user","content":[{"type":"input_text","text":"`+prompt+`"}]}`))
	b.WriteString(rolloutLine(startTS, "response_item",
		`{"type":"message","role":"assistant","content":[{"type":"output_text","text":"done"}]}`))

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write session: %v", err)
	}
	return path
}

func TestListSessionsSortsNewestFirst(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "a/older.jsonl", "sess-old", "/work/demo", "2025-06-01T09:00:00Z", "old prompt")
	writeSession(t, root, "b/newer.jsonl", "sess-new", "/work/demo", "2025-06-02T09:00:00Z", "new prompt")

	result, err := ListSessions(ListOptions{Root: root})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if len(result.Summaries) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(result.Summaries))
	}
	if result.Summaries[0].ID != "sess-new" || result.Summaries[1].ID != "sess-old" {
		t.Fatalf("wrong order: %s, %s", result.Summaries[0].ID, result.Summaries[1].ID)
	}
	if result.Summaries[0].Summary != "new prompt" {
		t.Fatalf("summary should be the first user prompt, got %q", result.Summaries[0].Summary)
	}
	if result.Summaries[0].MessageCount != 2 {
		t.Fatalf("expected 2 messages, got %d", result.Summaries[0].MessageCount)
	}
}

func TestListSessionsFilters(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "a.jsonl", "sess-a", "/work/demo", "2025-06-01T09:00:00Z", "in demo")
	writeSession(t, root, "b.jsonl", "sess-b", "/work/demo/sub", "2025-06-02T09:00:00Z", "in subdir")
	writeSession(t, root, "c.jsonl", "sess-c", "/other", "2025-06-03T09:00:00Z", "elsewhere")

	result, err := ListSessions(ListOptions{Root: root, CWD: "/work/demo"})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(result.Summaries) != 2 {
		t.Fatalf("prefix filter should match 2, got %d", len(result.Summaries))
	}

	result, err = ListSessions(ListOptions{Root: root, CWD: "/work/demo", ExactCWD: true})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(result.Summaries) != 1 || result.Summaries[0].ID != "sess-a" {
		t.Fatalf("exact filter should match sess-a only, got %+v", result.Summaries)
	}

	after := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	result, err = ListSessions(ListOptions{Root: root, After: &after})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(result.Summaries) != 2 {
		t.Fatalf("after filter should match 2, got %d", len(result.Summaries))
	}

	result, err = ListSessions(ListOptions{Root: root, Limit: 1})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(result.Summaries) != 1 || result.Summaries[0].ID != "sess-c" {
		t.Fatalf("limit should keep the newest, got %+v", result.Summaries)
	}
}

func TestListSessionsTruncatesSummaries(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "a.jsonl", "sess-a", "/work", "2025-06-01T09:00:00Z",
		"this prompt is much longer than ten characters")

	result, err := ListSessions(ListOptions{Root: root, MaxSummary: 10})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if got := result.Summaries[0].Summary; got != "this promp…" {
		t.Fatalf("unexpected truncated summary: %q", got)
	}
}

func TestListSessionsWarnsOnBadFiles(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "good.jsonl", "sess-a", "/work", "2025-06-01T09:00:00Z", "hello")
	if err := os.WriteFile(filepath.Join(root, "ignored.txt"), []byte("not a transcript"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	result, err := ListSessions(ListOptions{Root: root})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(result.Summaries) != 1 {
		t.Fatalf("expected 1 session, got %d", len(result.Summaries))
	}
}

func TestFindSessionPath(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "a.jsonl", "sess-a", "/work", "2025-06-01T09:00:00Z", "hello")
	want := writeSession(t, root, "nested/b.jsonl", "sess-b", "/work", "2025-06-02T09:00:00Z", "hi")

	got, err := FindSessionPath(root, "sess-b")
	if err != nil {
		t.Fatalf("FindSessionPath failed: %v", err)
	}
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	if _, err := FindSessionPath(root, "sess-missing"); err == nil {
		t.Fatalf("expected error for unknown session id")
	}
}
