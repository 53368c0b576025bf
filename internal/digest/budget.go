package digest

import (
	"encoding/json"
	"sort"
	"strings"
)

// DefaultMaxChars is the serialized-size ceiling for an evaluator-bound
// digest.
const DefaultMaxChars = 200_000

// Starting knob values and their floors for the shrink loop.
const (
	startMaxUserPrompts   = 30
	startMaxToolCalls     = 200
	startMaxAssistantText = 4
	startMaxToolErrors    = 20

	floorToolCalls     = 50
	floorUserPrompts   = 15
	floorAssistantText = 2
	floorToolErrors    = 10

	maxReducePasses = 6
)

// Head/tail bookends always kept by the selection policy.
const (
	promptHead = 5
	promptTail = 10
	callHead   = 10
	callTail   = 10
)

// budgetKeywords mark prompts describing interesting work. Each match adds
// 2 to the prompt's score; a touched-file token adds 5.
var budgetKeywords = []string{
	"fix", "bug", "refactor", "rename", "migrate", "upgrade",
	"security", "perf", "optimiz", "test", "failing", "error", "changelog",
}

// Reduce shrinks the digest until its compact JSON serialization fits
// maxChars, re-measuring after each knob adjustment. It converges within a
// bounded number of passes and never fails: if the floor configuration is
// still over budget, the smallest achievable digest is returned.
func Reduce(d *Digest, maxChars int) *Digest {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	prompts := startMaxUserPrompts
	calls := startMaxToolCalls
	assistant := startMaxAssistantText
	errors := startMaxToolErrors

	last := reduceOnce(d, prompts, calls, assistant, errors)
	for pass := 0; pass < maxReducePasses; pass++ {
		if serializedSize(last) <= maxChars {
			break
		}
		// Fixed priority order: bulkiest knob first, each with a floor.
		switch {
		case calls > floorToolCalls:
			calls = max(floorToolCalls, calls/2)
		case prompts > floorUserPrompts:
			prompts = max(floorUserPrompts, prompts-5)
		case assistant > floorAssistantText:
			assistant = floorAssistantText
		case errors > floorToolErrors:
			errors = floorToolErrors
		default:
			return last
		}
		last = reduceOnce(d, prompts, calls, assistant, errors)
	}
	return last
}

func serializedSize(d *Digest) int {
	encoded, err := json.Marshal(d)
	if err != nil {
		return DefaultMaxChars + 1
	}
	return len(encoded)
}

// reduceOnce builds a budgeted copy of d for one knob configuration. It
// always selects from the original digest, so repeated calls are
// independent and the output is deterministic.
func reduceOnce(d *Digest, maxPrompts, maxCalls, maxAssistant, maxErrors int) *Digest {
	out := *d
	out.Mode = "budget"

	tokens := touchedFileTokens(d.Delta.TouchedFiles)

	out.Delta.UserPrompts = selectItems(d.Delta.UserPrompts, maxPrompts, promptHead, promptTail,
		func(p PromptRef) int { return scoreText(p.Text, tokens) })

	if maxAssistant > 0 && len(d.Delta.AssistantText) > maxAssistant {
		out.Delta.AssistantText = d.Delta.AssistantText[len(d.Delta.AssistantText)-maxAssistant:]
	} else if maxAssistant <= 0 {
		out.Delta.AssistantText = []PromptRef{}
	}

	if maxErrors > 0 && len(d.Delta.ToolErrors) > maxErrors {
		out.Delta.ToolErrors = d.Delta.ToolErrors[len(d.Delta.ToolErrors)-maxErrors:]
	} else if maxErrors <= 0 {
		out.Delta.ToolErrors = []CallResult{}
	}

	selected := selectItems(d.Delta.ToolCalls, maxCalls, callHead, callTail, scoreCall)
	slimmed := make([]ToolCall, 0, len(selected))
	for _, call := range selected {
		slimmed = append(slimmed, slimCall(call))
	}
	out.Delta.ToolCalls = slimmed

	return &out
}

// selectItems keeps the first head and last tail items, fills remaining
// capacity with the highest-scoring middle items (ties broken by earliest
// index), and preserves original relative order.
func selectItems[T any](items []T, maxItems, head, tail int, score func(T) int) []T {
	if maxItems <= 0 {
		return []T{}
	}
	if len(items) <= maxItems {
		return items
	}

	keep := map[int]struct{}{}
	for i := 0; i < head && i < len(items); i++ {
		keep[i] = struct{}{}
	}
	for i := max(0, len(items)-tail); i < len(items); i++ {
		keep[i] = struct{}{}
	}

	remaining := maxItems - len(keep)
	if remaining > 0 {
		type scored struct {
			score int
			index int
		}
		var middle []scored
		for i, item := range items {
			if _, kept := keep[i]; kept {
				continue
			}
			middle = append(middle, scored{score: score(item), index: i})
		}
		sort.Slice(middle, func(a, b int) bool {
			if middle[a].score != middle[b].score {
				return middle[a].score > middle[b].score
			}
			return middle[a].index < middle[b].index
		})
		for _, s := range middle[:min(remaining, len(middle))] {
			keep[s.index] = struct{}{}
		}
	}

	indexes := make([]int, 0, len(keep))
	for i := range keep {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	selected := make([]T, 0, len(indexes))
	for _, i := range indexes {
		selected = append(selected, items[i])
	}
	return selected
}

func scoreText(text string, tokens []string) int {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	score := 0
	for _, kw := range budgetKeywords {
		if strings.Contains(lower, kw) {
			score += 2
		}
	}
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			score += 5
		}
	}
	return score
}

func scoreCall(call ToolCall) int {
	score := 0
	if isApplyPatchTool(call.Tool) {
		score += 80
	}
	if call.IsTest {
		score += 70
	}
	if strings.HasPrefix(strings.TrimSpace(call.Cmd), "git ") {
		score += 60
	}
	if call.Result != nil && call.Result.IsError {
		score += 100
	}
	if len(call.PatchFiles) > 0 {
		score += 15
	}
	if call.PathHint != "" {
		score += 10
	}
	return score
}

// slimCall strips bulky fields from a surviving call: only identity,
// command/path hints, and error-state results make it into the budgeted
// digest.
func slimCall(call ToolCall) ToolCall {
	out := ToolCall{
		Timestamp:  call.Timestamp,
		Tool:       call.Tool,
		Cmd:        call.Cmd,
		IsTest:     call.IsTest,
		PathHint:   call.PathHint,
		PatchFiles: call.PatchFiles,
	}
	if res := call.Result; res != nil {
		slim := CallResult{Timestamp: res.Timestamp, IsError: res.IsError, ExitCode: res.ExitCode}
		if res.IsError && res.ContentSnippet != "" {
			slim.ContentSnippet = res.ContentSnippet
		}
		if slim.IsError || slim.ExitCode != nil {
			out.Result = &slim
		}
	}
	return out
}

// touchedFileTokens derives scoring tokens from the digest's own touched
// files: lower-cased basenames and stems, path separators excluded.
func touchedFileTokens(touched TouchedFiles) []string {
	set := map[string]struct{}{}
	addPath := func(path string) {
		p := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(path, "\\", "/")))
		if p == "" {
			return
		}
		base := p
		if idx := strings.LastIndex(p, "/"); idx >= 0 {
			base = p[idx+1:]
		}
		if base == "" {
			return
		}
		set[base] = struct{}{}
		if stem, _, found := strings.Cut(base, "."); found && stem != "" {
			set[stem] = struct{}{}
		}
	}

	for _, group := range [][]string{touched.Created, touched.Modified, touched.Deleted} {
		for _, path := range group {
			addPath(path)
		}
	}
	for _, mv := range touched.Moved {
		addPath(mv.From)
		addPath(mv.To)
	}

	// Keep only short tokens to avoid pathological scoring loops.
	tokens := make([]string, 0, len(set))
	for tok := range set {
		if len(tok) >= 1 && len(tok) <= 64 && !strings.Contains(tok, "/") {
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	return tokens
}
