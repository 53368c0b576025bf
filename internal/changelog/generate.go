package changelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aisessions/internal/digest"
	"aisessions/internal/evaluator"
	"aisessions/internal/textutil"
)

// Status of one generation attempt.
type Status string

const (
	StatusAppended    Status = "appended"
	StatusExists      Status = "exists"
	StatusFailed      Status = "failed"
	StatusRateLimited Status = "rate_limited"
)

// Request describes one session window to turn into a changelog entry.
type Request struct {
	Tool            string
	Label           string
	ProjectRoot     string
	SessionDir      string
	Start           string
	End             string
	SourceJSONL     string
	SourceMatchJSON string

	// PriorPrompts is how many pre-window prompts to keep as context; zero
	// means digest.DefaultPriorPrompts.
	PriorPrompts int
	// Actor overrides identity detection when non-empty.
	Actor string
	// ContinuationOfRunID chains this run to the previous run in the same
	// session directory.
	ContinuationOfRunID string
}

// Result of one generation attempt. Err holds the recorded pipeline failure
// when Status is failed or rate_limited.
type Result struct {
	RunID  string
	Status Status
	Err    error
}

// Generate runs the full pipeline for one session window: run identity,
// duplicate check, digest build, evaluator call, validation, ledger append.
// Pipeline failures are converted into a failure record and a failed or
// rate_limited status; the returned error is reserved for ledger writes
// themselves going wrong.
func Generate(ctx context.Context, ledger *Ledger, eval evaluator.Evaluator, req Request) (Result, error) {
	tool := strings.ToLower(strings.TrimSpace(req.Tool))
	if tool == "" {
		tool = "unknown"
	}

	project := filepath.Base(req.ProjectRoot)
	if project == "" || project == "." {
		project = req.ProjectRoot
	}

	actor := req.Actor
	if actor == "" {
		actor = DetectActor(req.ProjectRoot)
	}

	sessionDir := req.SessionDir
	if abs, err := filepath.Abs(sessionDir); err == nil {
		sessionDir = abs
	}

	runID, err := ComputeRunID(RunKey{
		Tool:        tool,
		Start:       req.Start,
		End:         req.End,
		SessionDir:  sessionDir,
		SourceJSONL: req.SourceJSONL,
	})
	if err != nil {
		return Result{}, err
	}

	if ledger.HasRun(actor, runID) {
		return Result{RunID: runID, Status: StatusExists}, nil
	}

	entry, pipelineErr := buildEntry(ctx, eval, req, tool, actor, project, sessionDir, runID)
	if pipelineErr != nil {
		failure := Failure{
			SchemaVersion: EntrySchemaVersion,
			RunID:         runID,
			CreatedAt:     nowISO8601(),
			Tool:          tool,
			Actor:         actor,
			Project:       project,
			ProjectRoot:   req.ProjectRoot,
			SessionDir:    sessionDir,
			Start:         req.Start,
			End:           req.End,
			Error:         textutil.TruncateMiddle(pipelineErr.Error(), maxFailureChars),
		}
		if req.SourceJSONL != "" {
			failure.SourceJSONL = &req.SourceJSONL
		}
		if req.SourceMatchJSON != "" {
			failure.SourceMatchJSON = &req.SourceMatchJSON
		}
		if err := ledger.AppendFailure(failure); err != nil {
			return Result{}, err
		}

		status := StatusFailed
		if IsUsageLimitError(pipelineErr.Error()) {
			status = StatusRateLimited
		}
		return Result{RunID: runID, Status: status, Err: pipelineErr}, nil
	}

	if err := ledger.AppendEntry(*entry); err != nil {
		return Result{}, err
	}
	return Result{RunID: runID, Status: StatusAppended}, nil
}

func buildEntry(ctx context.Context, eval evaluator.Evaluator, req Request, tool, actor, project, sessionDir, runID string) (*Entry, error) {
	priorPrompts := req.PriorPrompts
	if priorPrompts <= 0 {
		priorPrompts = digest.DefaultPriorPrompts
	}

	d, err := digest.Build(req.SourceJSONL, req.Start, req.End, priorPrompts)
	if err != nil {
		return nil, fmt.Errorf("build digest: %w", err)
	}

	out, err := evaluate(ctx, eval, d)
	if err != nil {
		return nil, err
	}

	indexHTML := filepath.Join(sessionDir, "index.html")
	if _, statErr := os.Stat(indexHTML); statErr != nil {
		trace := filepath.Join(sessionDir, "trace.html")
		if _, statErr := os.Stat(trace); statErr == nil {
			indexHTML = trace
		}
	}

	entry := &Entry{
		SchemaVersion: EntrySchemaVersion,
		RunID:         runID,
		CreatedAt:     nowISO8601(),
		Tool:          tool,
		Actor:         actor,
		Project:       project,
		ProjectRoot:   req.ProjectRoot,
		Start:         req.Start,
		End:           req.End,
		SessionDir:    sessionDir,
		Transcript: Transcript{
			OutputDir:       sessionDir,
			IndexHTML:       indexHTML,
			SourceJSONL:     req.SourceJSONL,
			SourceMatchJSON: req.SourceMatchJSON,
		},
		Summary:      out.Summary,
		Bullets:      capStrings(out.Bullets, maxBullets),
		Tags:         capStrings(out.Tags, maxTags),
		TouchedFiles: d.Delta.TouchedFiles,
		Tests:        d.Delta.Tests,
		Commits:      d.Delta.Commits,
		Notes:        out.Notes,
	}
	if req.Label != "" {
		label := req.Label
		entry.Label = &label
	}
	if req.ContinuationOfRunID != "" {
		cont := req.ContinuationOfRunID
		entry.ContinuationOfRunID = &cont
	}
	return entry, nil
}

// evaluate runs the evaluator once, retrying a single time with a
// budget-reduced digest when the failure looks like a context-window
// overflow. Some sessions are too large to fit in one evaluator prompt.
func evaluate(ctx context.Context, eval evaluator.Evaluator, d *digest.Digest) (evaluator.Output, error) {
	prompt, err := evaluator.BuildPrompt(d)
	if err != nil {
		return evaluator.Output{}, err
	}

	out, err := eval.Evaluate(ctx, prompt)
	if err == nil {
		return out, nil
	}
	if !IsContextWindowError(err.Error()) {
		return evaluator.Output{}, err
	}

	reduced := digest.Reduce(d, digest.DefaultMaxChars)
	prompt, perr := evaluator.BuildPrompt(reduced)
	if perr != nil {
		return evaluator.Output{}, perr
	}
	return eval.Evaluate(ctx, prompt)
}
