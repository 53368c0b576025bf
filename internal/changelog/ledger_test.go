package changelog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRunIDsScansLegacyLayouts(t *testing.T) {
	root := t.TempDir()
	ledger := NewLedger(root)
	actor := "dev@example.com"
	slug := SlugifyActor(actor)

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(ledger.Dir(), rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write(filepath.Join(slug, "entries.jsonl"), `{"run_id":"aaaa111122223333"}`+"\n")
	write("entries.jsonl", `{"run_id":"bbbb111122223333"}`+"\n")
	write(filepath.Join("actors", slug, "entries.jsonl"),
		`{"run_id":"cccc111122223333"}`+"\nnot json\n"+`{"other":"field"}`+"\n")

	ids := ledger.LoadRunIDs(actor)
	for _, want := range []string{"aaaa111122223333", "bbbb111122223333", "cccc111122223333"} {
		if _, ok := ids[want]; !ok {
			t.Fatalf("missing run id %s in %v", want, ids)
		}
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 run ids, got %d", len(ids))
	}

	if !ledger.HasRun(actor, "bbbb111122223333") {
		t.Fatalf("HasRun must see legacy flat entries")
	}
	if ledger.HasRun(actor, "ffff000000000000") {
		t.Fatalf("HasRun reported an unknown run id")
	}
}

func TestAppendEntryCreatesActorDir(t *testing.T) {
	root := t.TempDir()
	ledger := NewLedger(root)

	entry := Entry{
		SchemaVersion: EntrySchemaVersion,
		RunID:         "dddd111122223333",
		Actor:         "dev@example.com",
		Summary:       "test entry",
		Bullets:       []string{"did a thing"},
	}
	if err := ledger.AppendEntry(entry); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	if !ledger.HasRun(entry.Actor, entry.RunID) {
		t.Fatalf("appended run not visible through HasRun")
	}
	if _, err := os.Stat(ledger.EntriesPath(entry.Actor)); err != nil {
		t.Fatalf("entries file not created: %v", err)
	}
}
