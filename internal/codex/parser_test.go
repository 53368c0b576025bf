package codex

import (
	"path/filepath"
	"strings"
	"testing"

	"aisessions/internal/model"
)

func TestParseFileRollout(t *testing.T) {
	session, err := ParseFile(filepath.Join("testdata", "rollout.jsonl"))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	if session.SourceFormat != model.FormatCodexRollout {
		t.Fatalf("expected source format %s, got %s", model.FormatCodexRollout, session.SourceFormat)
	}
	if session.Meta == nil {
		t.Fatalf("expected session meta")
	}
	if session.Meta.ID != "0196a1b2-aaaa-bbbb-cccc-0123456789ab" {
		t.Fatalf("unexpected session id %q", session.Meta.ID)
	}
	if session.Meta.CWD != "/home/dev/proj" {
		t.Fatalf("unexpected cwd %q", session.Meta.CWD)
	}

	// user message, reasoning, function_call, function_call_output,
	// assistant message; event_msg and the malformed line are dropped.
	if len(session.Events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(session.Events))
	}

	user := session.Events[0]
	if user.Type != model.TypeUser || user.Message.Text() != "Fix the login bug" {
		t.Fatalf("unexpected first event: %+v", user)
	}

	thinking := session.Events[1]
	if len(thinking.Message.Content) != 1 || thinking.Message.Content[0].Type != model.BlockThinking {
		t.Fatalf("expected thinking block, got %+v", thinking.Message.Content)
	}
	if thinking.Message.Content[0].Thinking != "Look at the auth module first" {
		t.Fatalf("unexpected thinking text %q", thinking.Message.Content[0].Thinking)
	}

	call := session.Events[2].Message.Content[0]
	if call.Type != model.BlockToolUse || call.ToolUse == nil {
		t.Fatalf("expected tool_use block, got %+v", call)
	}
	if call.ToolUse.Name != "shell" || call.ToolUse.ID != "call_1" {
		t.Fatalf("unexpected tool use %+v", call.ToolUse)
	}
	if got := call.ToolUse.Input.Command(); got != "pytest -q" {
		t.Fatalf("expected command pytest -q, got %q", got)
	}

	result := session.Events[3].Message.Content[0]
	if result.Type != model.BlockToolResult || result.ToolResult == nil {
		t.Fatalf("expected tool_result block, got %+v", result)
	}
	if result.ToolResult.IsError == nil || !*result.ToolResult.IsError {
		t.Fatalf("exit 1 output should be flagged as error")
	}

	assistant := session.Events[4]
	if assistant.Type != model.TypeAssistant || assistant.Message.Text() != "The failing assertion is in auth.py" {
		t.Fatalf("unexpected assistant event: %+v", assistant)
	}
}

func TestParseUnparseableArgumentsKeptRaw(t *testing.T) {
	line := `{"timestamp":"2025-06-01T10:00:00Z","type":"response_item","payload":{"type":"function_call","name":"shell","call_id":"c","arguments":"not-json"}}`
	session, err := Parse(strings.NewReader(line))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(session.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(session.Events))
	}
	use := session.Events[0].Message.Content[0].ToolUse
	if use == nil || use.Input.Raw != "not-json" {
		t.Fatalf("expected raw arguments, got %+v", use)
	}
}

func TestParseBareStringContent(t *testing.T) {
	line := `{"timestamp":"2025-06-01T10:00:00Z","type":"response_item","payload":{"type":"message","role":"user","content":"plain text"}}`
	session, err := Parse(strings.NewReader(line))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(session.Events) != 1 || session.Events[0].Message.Text() != "plain text" {
		t.Fatalf("expected bare string content, got %+v", session.Events)
	}
}
