package digest

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"aisessions/internal/model"
	"aisessions/internal/textutil"
)

// stopHookPrefix marks tool-chrome messages injected on behalf of the
// user; they are never real prompts.
const stopHookPrefix = "Stop hook feedback:"

// Hard caps, independent of the budget reducer.
const (
	maxCommits          = 50
	maxAssistantText    = 8
	maxPromptChars      = 2000
	maxCmdChars         = 500
	maxPatchSnippet     = 12000
	maxErrorTail        = 4000
	maxInputValueChars  = 4000
	redactedPlaceholder = "[omitted]"
)

// commitRe matches local git commit output: [branch abcdef1] message.
var commitRe = regexp.MustCompile(`\[[\w\-/]+ ([a-f0-9]{7,})\] (.+?)(?:\n|$)`)

// testCommandRes covers common unit-test runner invocations. Matches are
// case-sensitive; the list is a heuristic, not a contract.
var testCommandRes = []*regexp.Regexp{
	regexp.MustCompile(`\bpytest\b`),
	regexp.MustCompile(`\buv\s+run\b.*\bpytest\b`),
	regexp.MustCompile(`\bnpm\s+test\b`),
	regexp.MustCompile(`\byarn\s+test\b`),
	regexp.MustCompile(`\bpnpm\s+test\b`),
	regexp.MustCompile(`\bgo\s+test\b`),
	regexp.MustCompile(`\bmvn\b.*\btest\b`),
	regexp.MustCompile(`\bgradle\b.*\btest\b`),
	regexp.MustCompile(`\brake\s+test\b`),
}

func isCommandTool(name string) bool {
	switch name {
	case "bash", "shell", "terminal":
		return true
	}
	return strings.HasSuffix(name, "exec_command")
}

func isApplyPatchTool(name string) bool {
	return strings.HasSuffix(name, "apply_patch")
}

func looksLikeTestCommand(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return false
	}
	for _, re := range testCommandRes {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}

func extractCommits(text string) []Commit {
	var commits []Commit
	for _, m := range commitRe.FindAllStringSubmatch(text, -1) {
		commits = append(commits, Commit{Hash: m[1], Message: m[2]})
	}
	return commits
}

// patchOps are the file operations recovered from an apply_patch payload.
type patchOps struct {
	created  map[string]struct{}
	modified map[string]struct{}
	deleted  map[string]struct{}
	moved    []Move
}

// parsePatchOps scans a patch payload for its four directive prefixes. A
// "Move to:" directive attaches to whichever path the directive stream
// opened most recently.
func parsePatchOps(patchText string) patchOps {
	ops := patchOps{
		created:  map[string]struct{}{},
		modified: map[string]struct{}{},
		deleted:  map[string]struct{}{},
	}
	if strings.TrimSpace(patchText) == "" {
		return ops
	}

	currentPath := ""
	for _, raw := range strings.Split(patchText, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "*** Add File: "):
			currentPath = strings.TrimSpace(strings.TrimPrefix(line, "*** Add File: "))
			if currentPath != "" {
				ops.created[currentPath] = struct{}{}
			}
		case strings.HasPrefix(line, "*** Update File: "):
			currentPath = strings.TrimSpace(strings.TrimPrefix(line, "*** Update File: "))
			if currentPath != "" {
				ops.modified[currentPath] = struct{}{}
			}
		case strings.HasPrefix(line, "*** Delete File: "):
			currentPath = strings.TrimSpace(strings.TrimPrefix(line, "*** Delete File: "))
			if currentPath != "" {
				ops.deleted[currentPath] = struct{}{}
			}
		case strings.HasPrefix(line, "*** Move to: "):
			dest := strings.TrimSpace(strings.TrimPrefix(line, "*** Move to: "))
			if currentPath != "" && dest != "" {
				ops.moved = append(ops.moved, Move{From: currentPath, To: dest})
				// A rename supersedes the plain modification record.
				delete(ops.modified, currentPath)
			}
		}
	}
	return ops
}

func (ops patchOps) files() []string {
	set := map[string]struct{}{}
	for _, m := range []map[string]struct{}{ops.created, ops.modified, ops.deleted} {
		for path := range m {
			set[path] = struct{}{}
		}
	}
	for _, mv := range ops.moved {
		if mv.From != "" {
			set[mv.From] = struct{}{}
		}
		if mv.To != "" {
			set[mv.To] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// summarizeInput shapes a tool input for the digest: string values are
// truncated, nested structures are rendered as truncated JSON, raw inputs
// become a truncated string.
func summarizeInput(input model.ToolInput) any {
	if input.Raw != "" {
		return textutil.Truncate(input.Raw, maxInputValueChars)
	}
	if input.Structured == nil {
		return nil
	}
	summary := make(map[string]any, len(input.Structured))
	for k, v := range input.Structured {
		switch val := v.(type) {
		case string:
			summary[k] = textutil.Truncate(val, maxInputValueChars)
		case map[string]any, []any:
			encoded, err := json.Marshal(val)
			if err != nil {
				summary[k] = val
				continue
			}
			summary[k] = textutil.Truncate(string(encoded), maxInputValueChars)
		default:
			summary[k] = v
		}
	}
	return summary
}

// PriorPrompts returns the most recent limit real user prompts from the
// before-window partition, for session context.
func PriorPrompts(before []model.Event, limit int) []PromptRef {
	prompts := []PromptRef{}
	for _, event := range before {
		if event.Type != model.TypeUser {
			continue
		}
		text := event.Message.Text()
		if text == "" || strings.HasPrefix(text, stopHookPrefix) {
			continue
		}
		prompts = append(prompts, PromptRef{
			Timestamp: event.Timestamp,
			Text:      textutil.Truncate(text, maxPromptChars),
		})
	}
	if limit > 0 && len(prompts) > limit {
		prompts = prompts[len(prompts)-limit:]
	}
	return prompts
}

// ExtractDelta walks the within-window events and derives the structured
// facts of the session delta.
func ExtractDelta(within []model.Event) Delta {
	delta := Delta{
		UserPrompts:   []PromptRef{},
		AssistantText: []PromptRef{},
		ToolCalls:     []ToolCall{},
		ToolErrors:    []CallResult{},
		Tests:         []TestRun{},
		Commits:       []Commit{},
	}

	created := map[string]struct{}{}
	modified := map[string]struct{}{}
	deleted := map[string]struct{}{}
	moved := []Move{}

	// Results pair with the most recently opened unresolved call, not by
	// id: source tool_result blocks commonly omit the call id.
	var pending *ToolCall

	for _, event := range within {
		switch event.Type {
		case model.TypeUser:
			text := event.Message.Text()
			if text != "" && !strings.HasPrefix(text, stopHookPrefix) {
				delta.UserPrompts = append(delta.UserPrompts, PromptRef{
					Timestamp: event.Timestamp,
					Text:      textutil.Truncate(text, maxPromptChars),
				})
			}
			continue
		case model.TypeAssistant:
		default:
			continue
		}

		for _, txt := range event.Message.TextBlocks() {
			delta.Commits = append(delta.Commits, extractCommits(txt)...)
			delta.AssistantText = append(delta.AssistantText, PromptRef{
				Timestamp: event.Timestamp,
				Text:      textutil.Truncate(txt, maxPromptChars),
			})
		}

		for _, block := range event.Message.ToolBlocks() {
			switch block.Type {
			case model.BlockToolUse:
				use := block.ToolUse
				name := use.Name
				if name == "" {
					name = "unknown"
				}
				call := ToolCall{
					Timestamp: event.Timestamp,
					Tool:      name,
					Input:     summarizeInput(use.Input),
				}

				if isApplyPatchTool(name) {
					// Never echo raw patch text into the input summary.
					if summary, ok := call.Input.(map[string]any); ok {
						for _, key := range []string{"patch", "arguments"} {
							if _, present := summary[key]; present {
								summary[key] = redactedPlaceholder
							}
						}
					}
					if patchText := use.Input.PatchText(); patchText != "" {
						ops := parsePatchOps(patchText)
						for path := range ops.created {
							created[path] = struct{}{}
						}
						for path := range ops.modified {
							modified[path] = struct{}{}
						}
						for path := range ops.deleted {
							deleted[path] = struct{}{}
						}
						moved = append(moved, ops.moved...)
						call.PatchSnippet = textutil.Truncate(patchText, maxPatchSnippet)
						call.PatchFiles = ops.files()
					}
				}

				if path := use.Input.Path(); path != "" {
					modified[path] = struct{}{}
					call.PathHint = path
				}

				if isCommandTool(name) {
					if cmd := use.Input.Command(); cmd != "" {
						call.Cmd = textutil.Truncate(cmd, maxCmdChars)
						call.IsTest = looksLikeTestCommand(cmd)
					}
				}

				delta.ToolCalls = append(delta.ToolCalls, call)
				pending = &delta.ToolCalls[len(delta.ToolCalls)-1]

			case model.BlockToolResult:
				res := block.ToolResult
				content := res.Content
				delta.Commits = append(delta.Commits, extractCommits(content)...)

				isError := false
				explicitError := false
				if res.IsError != nil {
					isError = *res.IsError
					explicitError = *res.IsError
				} else {
					isError = model.ExecLooksLikeError(content)
				}

				var exitCode *int
				if pending != nil && pending.Cmd != "" {
					if code, ok := model.ExecExitCode(content); ok {
						exitCode = &code
					}
				}

				result := CallResult{
					Timestamp: event.Timestamp,
					IsError:   isError,
					ExitCode:  exitCode,
				}
				if isError {
					// Command output survives only for failures, and only
					// its tail, where the failure message lives.
					result.ContentSnippet = textutil.TruncateTail(content, maxErrorTail)
				}

				if pending != nil && pending.Result == nil {
					pending.Result = &result
					if pending.IsTest && pending.Cmd != "" {
						delta.Tests = append(delta.Tests, TestRun{
							Cmd:    pending.Cmd,
							Result: testOutcome(explicitError, exitCode),
						})
					}
				}
				if isError {
					delta.ToolErrors = append(delta.ToolErrors, result)
				}
			}
		}
	}

	delta.TouchedFiles = TouchedFiles{
		Created:  sortedKeys(created),
		Modified: sortedKeys(modified),
		Deleted:  sortedKeys(deleted),
		Moved:    moved,
	}

	if len(delta.Commits) > maxCommits {
		delta.Commits = delta.Commits[:maxCommits]
	}
	if len(delta.AssistantText) > maxAssistantText {
		delta.AssistantText = delta.AssistantText[len(delta.AssistantText)-maxAssistantText:]
	}

	return delta
}

func testOutcome(explicitError bool, exitCode *int) string {
	switch {
	case explicitError:
		return TestFail
	case exitCode != nil && *exitCode == 0:
		return TestPass
	case exitCode == nil:
		return TestUnknown
	default:
		return TestFail
	}
}
