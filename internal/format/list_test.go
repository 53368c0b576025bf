package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"aisessions/internal/store"
)

func sampleSummaries() []store.SessionSummary {
	return []store.SessionSummary{
		{
			ID:              "sess-a",
			Path:            "/tmp/a.jsonl",
			CWD:             "/work/demo",
			Tool:            "codex_rollout",
			StartedAt:       time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			Summary:         "fix the login\nredirect",
			MessageCount:    12,
			DurationSeconds: 3725,
		},
	}
}

func TestWriteSummariesPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaries(&buf, sampleSummaries(), true, "plain"); err != nil {
		t.Fatalf("WriteSummaries failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp\tsession_id") {
		t.Fatalf("unexpected header: %q", lines[0])
	}

	fields := strings.Split(lines[1], "\t")
	if len(fields) != 7 {
		t.Fatalf("expected 7 fields, got %d: %q", len(fields), lines[1])
	}
	if fields[1] != "sess-a" || fields[2] != "codex_rollout" {
		t.Fatalf("unexpected row: %q", lines[1])
	}
	if fields[4] != "01:02:05" {
		t.Fatalf("unexpected duration: %q", fields[4])
	}
	if fields[6] != `fix the login\nredirect` {
		t.Fatalf("newlines must be escaped: %q", fields[6])
	}
}

func TestWriteSummariesJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaries(&buf, sampleSummaries(), false, "jsonl"); err != nil {
		t.Fatalf("WriteSummaries failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line per session, got %d", len(lines))
	}
	var row store.SessionSummary
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil {
		t.Fatalf("jsonl row is not valid JSON: %v", err)
	}
	if row.ID != "sess-a" || row.MessageCount != 12 {
		t.Fatalf("round trip mismatch: %+v", row)
	}
}

func TestWriteSummariesTableHandlesEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaries(&buf, nil, true, "table"); err != nil {
		t.Fatalf("WriteSummaries failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no sessions)") {
		t.Fatalf("empty table missing placeholder: %s", buf.String())
	}
}

func TestWriteSummariesRejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaries(&buf, nil, false, "yaml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "00:00:00"},
		{-5, "00:00:00"},
		{59, "00:00:59"},
		{3600, "01:00:00"},
		{3725, "01:02:05"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.seconds); got != tc.want {
			t.Fatalf("formatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
