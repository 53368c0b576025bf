package changelog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"aisessions/internal/digest"
	"aisessions/internal/evaluator"
	"aisessions/internal/parser"
)

// BackfillOptions configure a backfill sweep over existing session output
// directories.
type BackfillOptions struct {
	ProjectRoot string
	// SessionsDirs to scan; empty means <root>/.codex/sessions and
	// <root>/.claude/sessions.
	SessionsDirs []string
	// Actor overrides identity detection for every entry.
	Actor string
	// DryRun prints what would be processed without calling the evaluator
	// or writing the ledger.
	DryRun bool
	// Limit caps the number of runs processed; zero means unlimited.
	Limit int
	// Jobs is the number of session directories processed concurrently;
	// values below 1 mean sequential.
	Jobs int

	Logger *slog.Logger
}

// BackfillSummary reports what a sweep did.
type BackfillSummary struct {
	Processed int
	Appended  int
	Skipped   int
	Failed    int
	Halted    bool
}

// runSpec is one discovered export run within a session directory.
type runSpec struct {
	Tool        string
	Label       string
	Start       string
	End         string
	SourceJSONL string
}

// sessionWork is all runs for one session directory. Runs are processed in
// order so continuation chaining holds within the directory.
type sessionWork struct {
	Dir             string
	SourceMatchJSON string
	Runs            []runSpec
}

// Backfill scans session output directories and generates a changelog entry
// for every discovered run that is not in the ledger yet. Directories are
// processed concurrently up to opts.Jobs; a rate-limit classification halts
// the whole sweep.
func Backfill(ctx context.Context, ledger *Ledger, eval evaluator.Evaluator, opts BackfillOptions) (BackfillSummary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	work := discoverSessions(opts, logger)
	work = applyLimit(work, opts.Limit)

	var summary BackfillSummary

	if opts.DryRun {
		for _, w := range work {
			for _, run := range w.Runs {
				logger.Info("backfill would process",
					"tool", run.Tool,
					"session", filepath.Base(w.Dir),
					"start", run.Start,
					"end", run.End,
					"source", filepath.Base(run.SourceJSONL))
				summary.Processed++
			}
		}
		return summary, nil
	}

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(jobs)

	for _, w := range work {
		w := w
		group.Go(func() error {
			prevRunID := ""
			for _, run := range w.Runs {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}

				result, err := Generate(groupCtx, ledger, eval, Request{
					Tool:                run.Tool,
					Label:               run.Label,
					ProjectRoot:         opts.ProjectRoot,
					SessionDir:          w.Dir,
					Start:               run.Start,
					End:                 run.End,
					SourceJSONL:         run.SourceJSONL,
					SourceMatchJSON:     w.SourceMatchJSON,
					Actor:               opts.Actor,
					ContinuationOfRunID: prevRunID,
				})
				if err != nil {
					return err
				}
				prevRunID = result.RunID

				mu.Lock()
				summary.Processed++
				switch result.Status {
				case StatusAppended:
					summary.Appended++
					logger.Info("backfill appended", "run_id", result.RunID, "session", filepath.Base(w.Dir))
				case StatusExists:
					summary.Skipped++
					logger.Info("backfill skipped, entry exists", "run_id", result.RunID, "session", filepath.Base(w.Dir))
				case StatusFailed:
					summary.Failed++
					logger.Warn("backfill failed", "run_id", result.RunID, "session", filepath.Base(w.Dir), "error", result.Err)
				case StatusRateLimited:
					summary.Failed++
					summary.Halted = true
					logger.Warn("backfill halted, usage limit reached", "run_id", result.RunID, "session", filepath.Base(w.Dir))
				}
				halted := summary.Halted
				mu.Unlock()

				if halted {
					return errHalted
				}
			}
			return nil
		})
	}

	err := group.Wait()
	if errors.Is(err, errHalted) || errors.Is(err, context.Canceled) && summary.Halted {
		return summary, nil
	}
	return summary, err
}

// errHalted stops the worker group after a rate-limit classification.
var errHalted = errors.New("backfill halted")

// discoverSessions walks the session parent directories and reconstructs
// the export runs recorded (or inferable) for each session directory.
func discoverSessions(opts BackfillOptions, logger *slog.Logger) []sessionWork {
	bases := opts.SessionsDirs
	if len(bases) == 0 {
		bases = []string{
			filepath.Join(opts.ProjectRoot, ".codex", "sessions"),
			filepath.Join(opts.ProjectRoot, ".claude", "sessions"),
		}
	}

	var work []sessionWork
	for _, base := range bases {
		if !filepath.IsAbs(base) {
			base = filepath.Join(opts.ProjectRoot, base)
		}
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}

		toolGuess := "unknown"
		switch filepath.Base(filepath.Dir(base)) {
		case ".codex":
			toolGuess = "codex"
		case ".claude":
			toolGuess = "claude"
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			dir := filepath.Join(base, name)
			if w, ok := discoverSessionDir(dir, toolGuess, logger); ok {
				work = append(work, w)
			}
		}
	}
	return work
}

func discoverSessionDir(dir, toolGuess string, logger *slog.Logger) (sessionWork, bool) {
	matchPath := filepath.Join(dir, "source_match.json")
	match := readSourceMatch(matchPath)

	type rawRun struct {
		Tool        string `json:"tool"`
		Label       string `json:"label"`
		Start       string `json:"start"`
		End         string `json:"end"`
		CopiedJSONL string `json:"copied_jsonl"`
	}
	var raws []rawRun
	for _, obj := range readJSONLObjects(filepath.Join(dir, "export_runs.jsonl")) {
		var run rawRun
		if err := json.Unmarshal(obj, &run); err == nil {
			raws = append(raws, run)
		}
	}
	if len(raws) == 0 {
		// No export log: synthesize a single run from the source match.
		raws = []rawRun{{Tool: toolGuess, Start: match.Start, End: match.End}}
	}

	labelGuess := DeriveSessionLabel(filepath.Base(dir))

	w := sessionWork{Dir: dir, SourceMatchJSON: matchPath}
	for _, raw := range raws {
		tool := raw.Tool
		if tool == "" {
			tool = toolGuess
		}
		label := raw.Label
		if label == "" {
			label = labelGuess
		}

		source := resolveCopiedJSONL(dir, raw.CopiedJSONL, match.Path)
		start, end := raw.Start, raw.End
		if (start == "" || end == "") && source != "" {
			if first, last, ok := transcriptBounds(source); ok {
				if start == "" {
					start = first
				}
				if end == "" {
					end = last
				}
			}
		}

		if start == "" || end == "" || source == "" {
			logger.Warn("backfill skipping session, missing timestamps or transcript", "session", dir)
			continue
		}
		w.Runs = append(w.Runs, runSpec{Tool: tool, Label: label, Start: start, End: end, SourceJSONL: source})
	}
	return w, len(w.Runs) > 0
}

// sourceMatch is the subset of source_match.json backfill cares about.
type sourceMatch struct {
	Path  string
	Start string
	End   string
}

func readSourceMatch(path string) sourceMatch {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sourceMatch{}
	}
	var doc struct {
		Best struct {
			Path  string `json:"path"`
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"best"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return sourceMatch{}
	}
	return sourceMatch{Path: doc.Best.Path, Start: doc.Best.Start, End: doc.Best.End}
}

// resolveCopiedJSONL picks the transcript for a run: the explicit
// copied_jsonl first, then the copy matching source_match.json, then the
// largest JSONL in the directory.
func resolveCopiedJSONL(dir, copied, matchPath string) string {
	if copied != "" {
		if !filepath.IsAbs(copied) {
			copied = filepath.Join(dir, copied)
		}
		if fileExists(copied) {
			return copied
		}
	}
	if matchPath != "" {
		candidate := filepath.Join(dir, filepath.Base(matchPath))
		if fileExists(candidate) {
			return candidate
		}
	}
	return chooseCopiedJSONL(dir)
}

var uuidJSONLRe = regexp.MustCompile(`(?i)^[0-9a-f\-]{36}\.jsonl$`)

// chooseCopiedJSONL prefers the copied native transcript (rollout-*.jsonl
// or <uuid>.jsonl) over anything else, biasing toward the largest file.
// The legacy events.jsonl is never a transcript.
func chooseCopiedJSONL(dir string) string {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return ""
	}

	type candidate struct {
		path   string
		size   int64
		native bool
	}
	var candidates []candidate
	for _, p := range paths {
		name := filepath.Base(p)
		if name == "events.jsonl" || name == "export_runs.jsonl" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		native := strings.HasPrefix(name, "rollout-") || uuidJSONLRe.MatchString(name)
		candidates = append(candidates, candidate{path: p, size: info.Size(), native: native})
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].native != candidates[b].native {
			return candidates[a].native
		}
		if candidates[a].size != candidates[b].size {
			return candidates[a].size > candidates[b].size
		}
		return candidates[a].path < candidates[b].path
	})
	return candidates[0].path
}

// transcriptBounds infers run bounds from the first and last parseable
// event timestamps in a transcript.
func transcriptBounds(path string) (first, last string, ok bool) {
	session, err := parser.ParseSessionFile(path)
	if err != nil {
		return "", "", false
	}

	var firstAt, lastAt time.Time
	for _, event := range session.Events {
		ts, parsed := digest.ParseEventTime(event.Timestamp)
		if !parsed {
			continue
		}
		if firstAt.IsZero() || ts.Before(firstAt) {
			firstAt = ts
			first = event.Timestamp
		}
		if lastAt.IsZero() || ts.After(lastAt) {
			lastAt = ts
			last = event.Timestamp
		}
	}
	return first, last, !firstAt.IsZero()
}

// DeriveSessionLabel extracts the human label from a session directory name
// of the form <STAMP>_<TITLE>[_N].
func DeriveSessionLabel(dirName string) string {
	_, labelPart, found := strings.Cut(dirName, "_")
	if !found {
		return ""
	}
	labelPart = trailingCounterRe.ReplaceAllString(labelPart, "")
	return strings.TrimSpace(strings.ReplaceAll(labelPart, "_", " "))
}

var trailingCounterRe = regexp.MustCompile(`_\d+$`)

func readJSONLObjects(path string) []json.RawMessage {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var objs []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		if !json.Valid([]byte(line)) {
			continue
		}
		objs = append(objs, json.RawMessage(line))
	}
	return objs
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func applyLimit(work []sessionWork, limit int) []sessionWork {
	if limit <= 0 {
		return work
	}
	remaining := limit
	var out []sessionWork
	for _, w := range work {
		if remaining <= 0 {
			break
		}
		if len(w.Runs) > remaining {
			w.Runs = w.Runs[:remaining]
		}
		remaining -= len(w.Runs)
		out = append(out, w)
	}
	return out
}
