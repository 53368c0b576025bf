// Package evaluator drives an external LLM CLI (codex or claude) as a
// subprocess: it feeds a changelog digest embedded in a prompt, enforces a
// timeout, and validates the structured JSON the tool returns.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"aisessions/internal/digest"
	"aisessions/internal/textutil"
)

// Sentinels bracketing the digest JSON inside the prompt so operators can
// locate and redact it in captured output.
const (
	DigestStartMarker = "DIGEST_JSON_START"
	DigestEndMarker   = "DIGEST_JSON_END"
	digestRedacted    = "DIGEST_JSON_[REDACTED]"
)

// Output is the validated evaluator response.
type Output struct {
	Summary string   `json:"summary"`
	Bullets []string `json:"bullets"`
	Tags    []string `json:"tags"`
	Notes   *string  `json:"notes"`
}

// OutputSchemaJSON is the JSON schema handed to the evaluator CLI. Every
// property is required (structured-output backends demand it); notes stays
// nullable.
const OutputSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["summary", "bullets", "tags", "notes"],
  "properties": {
    "summary": {"type": "string", "minLength": 1, "maxLength": 500},
    "bullets": {
      "type": "array",
      "minItems": 1,
      "maxItems": 12,
      "items": {"type": "string", "minLength": 1, "maxLength": 240}
    },
    "tags": {
      "type": "array",
      "minItems": 0,
      "maxItems": 24,
      "items": {"type": "string", "minLength": 1, "maxLength": 64}
    },
    "notes": {"type": ["string", "null"], "maxLength": 800}
  }
}`

// Evaluator turns a prompt into a validated structured output. Both
// implementations shell out to an external CLI.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, prompt string) (Output, error)
}

// BuildPrompt renders the evaluator prompt with the digest between the
// sentinel markers.
func BuildPrompt(d *digest.Digest) (string, error) {
	encoded, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal digest: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are generating an engineering changelog entry for a single terminal-based coding session.\n")
	b.WriteString("\n")
	b.WriteString("Requirements:\n")
	b.WriteString("- Focus ONLY on work done within the provided time window (the 'delta').\n")
	b.WriteString("- Do NOT quote user prompts verbatim; paraphrase context into searchable phrasing.\n")
	b.WriteString("- Do NOT include secrets, tokens, API keys, or credentials. If unsure, write [REDACTED].\n")
	b.WriteString("- Be concrete: mention what changed and why, and reference files by path when known.\n")
	b.WriteString("- Keep it concise.\n")
	b.WriteString("\n")
	b.WriteString("Return JSON matching the output schema.\n")
	b.WriteString("\n")
	b.WriteString(DigestStartMarker + "\n")
	b.Write(encoded)
	b.WriteString("\n" + DigestEndMarker + "\n")
	return b.String(), nil
}

// Validate enforces the hard requirements on evaluator output: a non-empty
// summary and a non-empty bullets list. A missing tags array degrades to
// empty.
func Validate(tool string, out Output) (Output, error) {
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		return Output{}, &OutputError{Tool: tool, Reason: "output missing summary"}
	}

	bullets := make([]string, 0, len(out.Bullets))
	for _, b := range out.Bullets {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			bullets = append(bullets, trimmed)
		}
	}
	if len(bullets) == 0 {
		return Output{}, &OutputError{Tool: tool, Reason: "output missing bullets"}
	}
	out.Bullets = bullets

	tags := make([]string, 0, len(out.Tags))
	for _, t := range out.Tags {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	out.Tags = tags

	if out.Notes != nil {
		trimmed := strings.TrimSpace(*out.Notes)
		if trimmed == "" {
			out.Notes = nil
		} else {
			out.Notes = &trimmed
		}
	}
	return out, nil
}

// Pre-compiled; sanitization runs on every captured stream.
var (
	ansiRe         = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	digestBlockRe  = regexp.MustCompile(`(?s)DIGEST_JSON_START.*?DIGEST_JSON_END`)
	digestOpenRe   = regexp.MustCompile(`(?s)DIGEST_JSON_START.*`)
	fenceOpenRe    = regexp.MustCompile(`(?i)^` + "```" + `(?:json)?\s*`)
	fenceCloseRe   = regexp.MustCompile(`\s*` + "```" + `\s*$`)
	embeddedJSONRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// StripANSI removes terminal control sequences from CLI output.
func StripANSI(text string) string {
	return ansiRe.ReplaceAllString(text, "")
}

// RedactDigest replaces any digest payload echoed into output with a
// placeholder, covering full blocks and blocks truncated on either side.
func RedactDigest(text string) string {
	if !strings.Contains(text, DigestStartMarker) && !strings.Contains(text, DigestEndMarker) {
		return text
	}
	text = digestBlockRe.ReplaceAllString(text, digestRedacted)
	text = digestOpenRe.ReplaceAllString(text, digestRedacted)
	if !strings.Contains(text, DigestStartMarker) && strings.Contains(text, DigestEndMarker) {
		_, after, _ := strings.Cut(text, DigestEndMarker)
		text = digestRedacted + "\n" + strings.TrimLeft(after, " \t\n")
	}
	return text
}

func sanitizeTail(text string, max int) string {
	return textutil.TruncateTail(RedactDigest(StripANSI(text)), max)
}

// salvageJSONObject recovers a JSON object from noisy CLI output: direct
// parse first, then the largest embedded {...} span.
func salvageJSONObject(tool, raw string) (map[string]json.RawMessage, error) {
	s := strings.TrimSpace(StripANSI(raw))
	if s == "" {
		return nil, &OutputError{Tool: tool, Reason: "output was empty"}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj, nil
	}

	span := embeddedJSONRe.FindString(s)
	if span != "" {
		if err := json.Unmarshal([]byte(span), &obj); err == nil {
			return obj, nil
		}
	}
	return nil, &OutputError{Tool: tool, Reason: "output was not valid JSON"}
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = fenceOpenRe.ReplaceAllString(s, "")
	return fenceCloseRe.ReplaceAllString(strings.TrimSpace(s), "")
}

func remarshal(obj map[string]json.RawMessage) ([]byte, error) {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("re-encode salvaged output: %w", err)
	}
	return encoded, nil
}

func decodeOutput(tool string, raw []byte) (Output, error) {
	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return Output{}, &OutputError{Tool: tool, Reason: fmt.Sprintf("structured output malformed: %v", err)}
	}
	return Validate(tool, out)
}
