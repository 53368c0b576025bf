package changelog

import (
	"time"

	"aisessions/internal/digest"
)

// EntrySchemaVersion of the persisted ledger records.
const EntrySchemaVersion = 1

// Caps applied when assembling an entry from evaluator output.
const (
	maxBullets      = 12
	maxTags         = 24
	maxFailureChars = 2000
)

// Transcript points at the session artifacts an entry was derived from.
// Pointers only; transcript content is never copied into the ledger.
type Transcript struct {
	OutputDir       string `json:"output_dir"`
	IndexHTML       string `json:"index_html"`
	SourceJSONL     string `json:"source_jsonl"`
	SourceMatchJSON string `json:"source_match_json"`
}

// Entry is one changelog record in the per-actor entries ledger.
type Entry struct {
	SchemaVersion       int                 `json:"schema_version"`
	RunID               string              `json:"run_id"`
	CreatedAt           string              `json:"created_at"`
	Tool                string              `json:"tool"`
	Actor               string              `json:"actor"`
	Project             string              `json:"project"`
	ProjectRoot         string              `json:"project_root"`
	Label               *string             `json:"label"`
	Start               string              `json:"start"`
	End                 string              `json:"end"`
	SessionDir          string              `json:"session_dir"`
	ContinuationOfRunID *string             `json:"continuation_of_run_id"`
	Transcript          Transcript          `json:"transcript"`
	Summary             string              `json:"summary"`
	Bullets             []string            `json:"bullets"`
	Tags                []string            `json:"tags"`
	TouchedFiles        digest.TouchedFiles `json:"touched_files"`
	Tests               []digest.TestRun    `json:"tests"`
	Commits             []digest.Commit     `json:"commits"`
	Notes               *string             `json:"notes"`
}

// Failure is one record in the per-actor failures ledger. It carries enough
// context to locate and retry the session later.
type Failure struct {
	SchemaVersion   int     `json:"schema_version"`
	RunID           string  `json:"run_id"`
	CreatedAt       string  `json:"created_at"`
	Tool            string  `json:"tool"`
	Actor           string  `json:"actor"`
	Project         string  `json:"project"`
	ProjectRoot     string  `json:"project_root"`
	SessionDir      string  `json:"session_dir"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	SourceJSONL     *string `json:"source_jsonl"`
	SourceMatchJSON *string `json:"source_match_json"`
	Error           string  `json:"error"`
}

func nowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func capStrings(values []string, max int) []string {
	if len(values) > max {
		return values[:max]
	}
	return values
}
