package digest

import (
	"fmt"
	"strings"
	"testing"

	"aisessions/internal/model"
)

func assistantText(ts, text string) model.Event {
	return model.Event{
		Type:      model.TypeAssistant,
		Timestamp: ts,
		Message: model.Message{
			Role:    model.TypeAssistant,
			Content: []model.ContentBlock{{Type: model.BlockText, Text: text}},
		},
	}
}

func toolUseEvent(ts, name string, input map[string]any) model.Event {
	return model.Event{
		Type:      model.TypeAssistant,
		Timestamp: ts,
		Message: model.Message{
			Role: model.TypeAssistant,
			Content: []model.ContentBlock{{
				Type:    model.BlockToolUse,
				ToolUse: &model.ToolUse{Name: name, Input: model.StructuredInput(input)},
			}},
		},
	}
}

func toolResultEvent(ts, content string, isError *bool) model.Event {
	return model.Event{
		Type:      model.TypeAssistant,
		Timestamp: ts,
		Message: model.Message{
			Role: model.TypeAssistant,
			Content: []model.ContentBlock{{
				Type:       model.BlockToolResult,
				ToolResult: &model.ToolResult{Content: content, IsError: isError},
			}},
		},
	}
}

func TestExtractCommitsFromGitOutput(t *testing.T) {
	commits := extractCommits("[main a1b2c3d] Fix login bug\n 1 file changed")
	if len(commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(commits))
	}
	if commits[0].Hash != "a1b2c3d" || commits[0].Message != "Fix login bug" {
		t.Fatalf("unexpected commit: %+v", commits[0])
	}

	if got := extractCommits("[abc123] too short hash segment"); len(got) != 0 {
		t.Fatalf("expected no commits, got %+v", got)
	}
}

func TestPatchMoveSupersedesModified(t *testing.T) {
	patch := strings.Join([]string{
		"*** Begin Patch",
		"*** Update File: src/app.py",
		"*** Move to: src/app2.py",
		"@@ -1 +1 @@",
		"*** End Patch",
	}, "\n")

	events := []model.Event{
		toolUseEvent("2025-06-01T10:05:00Z", "apply_patch", map[string]any{"patch": patch}),
	}
	delta := ExtractDelta(events)

	if len(delta.TouchedFiles.Moved) != 1 {
		t.Fatalf("expected 1 move, got %+v", delta.TouchedFiles.Moved)
	}
	mv := delta.TouchedFiles.Moved[0]
	if mv.From != "src/app.py" || mv.To != "src/app2.py" {
		t.Fatalf("unexpected move: %+v", mv)
	}
	for _, path := range delta.TouchedFiles.Modified {
		if path == "src/app.py" {
			t.Fatalf("moved-from path must not remain in modified: %+v", delta.TouchedFiles.Modified)
		}
	}
}

func TestPatchOpsAndRedaction(t *testing.T) {
	patch := strings.Join([]string{
		"*** Begin Patch",
		"*** Add File: pkg/new.go",
		"+package pkg",
		"*** Delete File: pkg/old.go",
		"*** End Patch",
	}, "\n")

	events := []model.Event{
		toolUseEvent("2025-06-01T10:05:00Z", "apply_patch", map[string]any{"patch": patch}),
	}
	delta := ExtractDelta(events)

	if len(delta.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(delta.ToolCalls))
	}
	call := delta.ToolCalls[0]

	summary, ok := call.Input.(map[string]any)
	if !ok {
		t.Fatalf("expected input summary map, got %T", call.Input)
	}
	if summary["patch"] != "[omitted]" {
		t.Fatalf("patch text must be redacted from the input summary, got %v", summary["patch"])
	}
	if call.PatchSnippet == "" || !strings.Contains(call.PatchSnippet, "Add File") {
		t.Fatalf("expected patch snippet, got %q", call.PatchSnippet)
	}

	if len(delta.TouchedFiles.Created) != 1 || delta.TouchedFiles.Created[0] != "pkg/new.go" {
		t.Fatalf("unexpected created: %+v", delta.TouchedFiles.Created)
	}
	if len(delta.TouchedFiles.Deleted) != 1 || delta.TouchedFiles.Deleted[0] != "pkg/old.go" {
		t.Fatalf("unexpected deleted: %+v", delta.TouchedFiles.Deleted)
	}
	if len(call.PatchFiles) != 2 {
		t.Fatalf("expected 2 patch files, got %+v", call.PatchFiles)
	}
}

func TestTestOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		output  string
		isError *bool
		want    string
	}{
		{name: "exit zero passes", output: "5 passed\nProcess exited with code 0", want: TestPass},
		{name: "exit one fails", output: "1 failed\nProcess exited with code 1", want: TestFail},
		{name: "no marker unknown", output: "collected 5 items", want: TestUnknown},
		{name: "explicit error fails", output: "boom", isError: boolPtr(true), want: TestFail},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := []model.Event{
				toolUseEvent("2025-06-01T10:05:00Z", "bash", map[string]any{"command": "pytest -q"}),
				toolResultEvent("2025-06-01T10:05:10Z", tc.output, tc.isError),
			}
			delta := ExtractDelta(events)
			if len(delta.Tests) != 1 {
				t.Fatalf("expected 1 test run, got %+v", delta.Tests)
			}
			if delta.Tests[0].Result != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, delta.Tests[0].Result)
			}
		})
	}
}

func TestResultPairsWithMostRecentPendingCall(t *testing.T) {
	events := []model.Event{
		toolUseEvent("2025-06-01T10:00:00Z", "bash", map[string]any{"command": "ls"}),
		toolResultEvent("2025-06-01T10:00:01Z", "a.txt\nProcess exited with code 0", nil),
		toolUseEvent("2025-06-01T10:00:02Z", "bash", map[string]any{"command": "cat missing"}),
		toolResultEvent("2025-06-01T10:00:03Z", "no such file\nProcess exited with code 1", nil),
	}
	delta := ExtractDelta(events)

	if len(delta.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(delta.ToolCalls))
	}
	first, second := delta.ToolCalls[0], delta.ToolCalls[1]
	if first.Result == nil || first.Result.IsError {
		t.Fatalf("first call should carry a success result: %+v", first.Result)
	}
	if second.Result == nil || !second.Result.IsError {
		t.Fatalf("second call should carry the error result: %+v", second.Result)
	}
	if second.Result.ExitCode == nil || *second.Result.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %+v", second.Result.ExitCode)
	}
	if len(delta.ToolErrors) != 1 {
		t.Fatalf("expected 1 tool error, got %d", len(delta.ToolErrors))
	}
	if delta.ToolErrors[0].ContentSnippet == "" {
		t.Fatalf("error results keep a content snippet")
	}
}

func TestErrorSnippetKeepsTail(t *testing.T) {
	long := strings.Repeat("x", 6000) + "\nfinal failure line"
	events := []model.Event{
		toolUseEvent("2025-06-01T10:00:00Z", "bash", map[string]any{"command": "make"}),
		toolResultEvent("2025-06-01T10:00:01Z", long+"\nProcess exited with code 2", nil),
	}
	delta := ExtractDelta(events)
	snippet := delta.ToolCalls[0].Result.ContentSnippet
	if len(snippet) > maxErrorTail {
		t.Fatalf("snippet exceeds cap: %d", len(snippet))
	}
	if !strings.Contains(snippet, "final failure line") {
		t.Fatalf("tail truncation must keep the end of the output")
	}
}

func TestAssistantTextCapped(t *testing.T) {
	var events []model.Event
	for i := 0; i < 12; i++ {
		events = append(events, assistantText("2025-06-01T10:00:00Z", fmt.Sprintf("note %d", i)))
	}
	delta := ExtractDelta(events)
	if len(delta.AssistantText) != maxAssistantText {
		t.Fatalf("expected %d assistant snippets, got %d", maxAssistantText, len(delta.AssistantText))
	}
	if delta.AssistantText[0].Text != "note 4" {
		t.Fatalf("expected the most recent snippets, got %+v", delta.AssistantText[0])
	}
}

func TestStopHookPromptsIgnored(t *testing.T) {
	events := []model.Event{
		userEvent("2025-06-01T10:00:00Z", "Stop hook feedback: rerun lint"),
		userEvent("2025-06-01T10:00:05Z", "real prompt"),
	}
	delta := ExtractDelta(events)
	if len(delta.UserPrompts) != 1 || delta.UserPrompts[0].Text != "real prompt" {
		t.Fatalf("unexpected prompts: %+v", delta.UserPrompts)
	}
}

func boolPtr(v bool) *bool { return &v }
