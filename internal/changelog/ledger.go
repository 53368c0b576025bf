package changelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LedgerDirName is the per-project changelog directory.
const LedgerDirName = ".changelog"

// Ledger is the append-only JSONL store under <project>/.changelog. Appends
// are serialized so concurrent backfill workers never interleave partial
// lines.
type Ledger struct {
	dir string

	mu sync.Mutex
}

// NewLedger returns the ledger rooted at projectRoot/.changelog. Nothing is
// created until the first append.
func NewLedger(projectRoot string) *Ledger {
	return &Ledger{dir: filepath.Join(projectRoot, LedgerDirName)}
}

// Dir returns the ledger directory.
func (l *Ledger) Dir() string { return l.dir }

// EntriesPath returns the entries ledger file for an actor.
func (l *Ledger) EntriesPath(actor string) string {
	return filepath.Join(l.dir, SlugifyActor(actor), "entries.jsonl")
}

// FailuresPath returns the failures ledger file for an actor.
func (l *Ledger) FailuresPath(actor string) string {
	return filepath.Join(l.dir, SlugifyActor(actor), "failures.jsonl")
}

// LoadRunIDs collects every run_id already recorded for an actor. Legacy
// layouts (a flat entries.jsonl and the old actors/ subtree) are scanned
// too, so migrated projects never re-append old runs.
func (l *Ledger) LoadRunIDs(actor string) map[string]struct{} {
	slug := SlugifyActor(actor)
	paths := []string{
		l.EntriesPath(actor),
		filepath.Join(l.dir, "entries.jsonl"),
		filepath.Join(l.dir, "actors", slug, "entries.jsonl"),
	}

	ids := map[string]struct{}{}
	for _, path := range paths {
		scanRunIDs(path, ids)
	}
	return ids
}

// HasRun reports whether runID is already recorded for actor.
func (l *Ledger) HasRun(actor, runID string) bool {
	_, ok := l.LoadRunIDs(actor)[runID]
	return ok
}

// AppendEntry writes one entry line to the actor's entries ledger.
func (l *Ledger) AppendEntry(entry Entry) error {
	return l.appendJSONL(l.EntriesPath(entry.Actor), entry)
}

// AppendFailure writes one failure line to the actor's failures ledger.
func (l *Ledger) AppendFailure(failure Failure) error {
	return l.appendJSONL(l.FailuresPath(failure.Actor), failure)
}

func (l *Ledger) appendJSONL(path string, record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	return nil
}

// scanRunIDs reads run_id values out of a JSONL file, tolerating missing
// files and malformed lines.
func scanRunIDs(path string, into map[string]struct{}) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record struct {
			RunID string `json:"run_id"`
		}
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		if record.RunID != "" {
			into[record.RunID] = struct{}{}
		}
	}
}
