// Package codex parses Codex CLI rollout JSONL session logs into the
// normalized event model. Rollout lines look like
// {timestamp, type, payload} with type in
// {session_meta, response_item, event_msg}.
package codex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"aisessions/internal/model"
)

// Entry and payload type tags observed in rollout files.
const (
	EntryTypeSessionMeta  = "session_meta"
	EntryTypeResponseItem = "response_item"
	EntryTypeEventMsg     = "event_msg"

	itemTypeMessage              = "message"
	itemTypeReasoning            = "reasoning"
	itemTypeFunctionCall         = "function_call"
	itemTypeFunctionCallOutput   = "function_call_output"
	itemTypeCustomToolCall       = "custom_tool_call"
	itemTypeCustomToolCallOutput = "custom_tool_call_output"
)

type rawRecord struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type sessionMetaPayload struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	CWD        string `json:"cwd"`
	Originator string `json:"originator"`
	CLIVersion string `json:"cli_version"`
}

type responseItemPayload struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Name      string          `json:"name"`
	CallID    string          `json:"call_id"`
	Status    string          `json:"status"`
	Arguments string          `json:"arguments"`
	Input     json.RawMessage `json:"input"`
	Output    string          `json:"output"`
	Content   json.RawMessage `json:"content"`
	Summary   json.RawMessage `json:"summary"`
}

type messageBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type summaryBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ParseFile reads a rollout JSONL file and normalizes it. Malformed lines
// are skipped; they never abort the parse.
func ParseFile(path string) (*model.Session, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	session, err := Parse(file)
	if err != nil {
		return nil, err
	}
	if session.Meta != nil {
		session.Meta.Path = path
	}
	return session, nil
}

// Parse normalizes rollout JSONL from r.
func Parse(r io.Reader) (*model.Session, error) {
	session := &model.Session{SourceFormat: model.FormatCodexRollout}

	scanner := newScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec rawRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}

		switch rec.Type {
		case EntryTypeSessionMeta:
			if meta := parseMeta(rec); meta != nil && session.Meta == nil {
				session.Meta = meta
			}
		case EntryTypeResponseItem:
			if event, ok := parseResponseItem(rec); ok {
				session.Events = append(session.Events, event)
			}
		default:
			// event_msg and anything newer carry no message content we keep.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return session, nil
}

func parseMeta(rec rawRecord) *model.SessionMeta {
	var payload sessionMetaPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil
	}
	tsValue := payload.Timestamp
	if tsValue == "" {
		tsValue = rec.Timestamp
	}
	started, _ := parseTimestamp(tsValue)
	return &model.SessionMeta{
		ID:         payload.ID,
		CWD:        payload.CWD,
		Originator: payload.Originator,
		CLIVersion: payload.CLIVersion,
		StartedAt:  started,
	}
}

func parseResponseItem(rec rawRecord) (model.Event, bool) {
	var payload responseItemPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return model.Event{}, false
	}

	switch payload.Type {
	case itemTypeMessage:
		if payload.Role != model.TypeUser && payload.Role != model.TypeAssistant {
			return model.Event{}, false
		}
		blocks := convertMessageContent(payload.Content)
		return model.Event{
			Type:      payload.Role,
			Timestamp: rec.Timestamp,
			Message:   model.Message{Role: payload.Role, Content: blocks},
		}, true

	case itemTypeFunctionCall:
		name := payload.Name
		if name == "" {
			name = "Unknown tool"
		}
		// Arguments arrive as a JSON-encoded string; structured objects
		// become Structured input, anything else passes through raw.
		input := parseArguments(payload.Arguments)
		return assistantEvent(rec.Timestamp, model.ContentBlock{
			Type:    model.BlockToolUse,
			ToolUse: &model.ToolUse{Name: name, ID: payload.CallID, Input: input},
		}), true

	case itemTypeCustomToolCall:
		name := payload.Name
		if name == "" {
			name = "Unknown tool"
		}
		fields := map[string]any{}
		if payload.Status != "" {
			fields["status"] = payload.Status
		}
		mergeCustomInput(fields, payload.Input)
		return assistantEvent(rec.Timestamp, model.ContentBlock{
			Type:    model.BlockToolUse,
			ToolUse: &model.ToolUse{Name: name, ID: payload.CallID, Input: model.StructuredInput(fields)},
		}), true

	case itemTypeFunctionCallOutput, itemTypeCustomToolCallOutput:
		isError := model.ExecLooksLikeError(payload.Output)
		return assistantEvent(rec.Timestamp, model.ContentBlock{
			Type:       model.BlockToolResult,
			ToolResult: &model.ToolResult{Content: payload.Output, IsError: &isError},
		}), true

	case itemTypeReasoning:
		thinking := joinSummaryText(payload.Summary)
		if thinking == "" {
			return model.Event{}, false
		}
		return assistantEvent(rec.Timestamp, model.ContentBlock{
			Type:     model.BlockThinking,
			Thinking: thinking,
		}), true
	}

	return model.Event{}, false
}

func assistantEvent(ts string, block model.ContentBlock) model.Event {
	return model.Event{
		Type:      model.TypeAssistant,
		Timestamp: ts,
		Message:   model.Message{Role: model.TypeAssistant, Content: []model.ContentBlock{block}},
	}
}

// parseArguments decodes a function_call arguments string. Unparseable
// strings pass through as raw input.
func parseArguments(arguments string) model.ToolInput {
	var fields map[string]any
	if err := json.Unmarshal([]byte(arguments), &fields); err == nil {
		return model.StructuredInput(fields)
	}
	return model.RawInput(arguments)
}

func mergeCustomInput(fields map[string]any, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for k, v := range asMap {
			fields[k] = v
		}
		return
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		fields["input"] = asString
		return
	}
	fields["input"] = string(raw)
}

// convertMessageContent maps Codex message content (input_text/output_text
// blocks or a bare string) onto normalized text blocks. Unknown block
// shapes are preserved as their JSON text rather than dropped.
func convertMessageContent(raw json.RawMessage) []model.ContentBlock {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []model.ContentBlock{{Type: model.BlockText, Text: asString}}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []model.ContentBlock{{Type: model.BlockText, Text: string(raw)}}
	}

	var blocks []model.ContentBlock
	for _, item := range items {
		var block messageBlock
		if err := json.Unmarshal(item, &block); err != nil {
			continue
		}
		switch block.Type {
		case "input_text", "output_text":
			if block.Text != "" {
				blocks = append(blocks, model.ContentBlock{Type: model.BlockText, Text: block.Text})
			}
		default:
			blocks = append(blocks, model.ContentBlock{Type: model.BlockText, Text: string(item)})
		}
	}
	return blocks
}

func joinSummaryText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var items []summaryBlock
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	var parts []string
	for _, item := range items {
		if item.Type == "summary_text" && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	// Allow large payloads such as instructions blocks.
	const maxCapacity = 8 * 1024 * 1024
	buf := make([]byte, 1024)
	scanner.Buffer(buf, maxCapacity)
	return scanner
}

func parseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, true
	}
	ts, err := time.Parse(time.RFC3339, value)
	return ts, err == nil
}
