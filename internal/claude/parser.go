// Package claude parses Claude Code session logs into the normalized event
// model. Two shapes exist: local JSONL with one {type, timestamp, message}
// record per line, and exported JSON documents carrying a "loglines" array
// of the same records.
package claude

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"aisessions/internal/model"
)

type rawEntry struct {
	Type             string          `json:"type"`
	Timestamp        string          `json:"timestamp"`
	Message          json.RawMessage `json:"message"`
	IsCompactSummary bool            `json:"isCompactSummary"`
	SessionID        string          `json:"sessionId"`
	CWD              string          `json:"cwd"`
	Version          string          `json:"version"`
}

type messagePayload struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   *bool           `json:"is_error"`
}

type exportedDocument struct {
	Loglines []json.RawMessage `json:"loglines"`
}

// ParseFile normalizes a Claude Code session file. JSONL files are scanned
// line by line with malformed lines skipped; anything else is treated as a
// single exported JSON document.
func ParseFile(path string) (*model.Session, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	if strings.HasSuffix(path, ".jsonl") {
		session, err := ParseJSONL(file)
		if err != nil {
			return nil, err
		}
		if session.Meta != nil {
			session.Meta.Path = path
		}
		return session, nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return ParseDocument(data)
}

// ParseJSONL normalizes one-record-per-line Claude logs from r.
func ParseJSONL(r io.Reader) (*model.Session, error) {
	session := &model.Session{SourceFormat: model.FormatClaudeJSONL}

	scanner := newScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		appendEntry(session, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// ParseDocument normalizes an exported JSON document with a loglines array.
func ParseDocument(data []byte) (*model.Session, error) {
	var doc exportedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal session document: %w", err)
	}
	session := &model.Session{SourceFormat: model.FormatClaudeJSON}
	for _, raw := range doc.Loglines {
		appendEntry(session, raw)
	}
	return session, nil
}

func appendEntry(session *model.Session, raw []byte) {
	var entry rawEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return
	}

	// Non-message record types (summary, system, progress...) are dropped.
	if entry.Type != model.TypeUser && entry.Type != model.TypeAssistant {
		return
	}

	if session.Meta == nil && entry.SessionID != "" {
		started, _ := parseTimestamp(entry.Timestamp)
		session.Meta = &model.SessionMeta{
			ID:         entry.SessionID,
			CWD:        entry.CWD,
			CLIVersion: entry.Version,
			StartedAt:  started,
		}
	}

	session.Events = append(session.Events, model.Event{
		Type:           entry.Type,
		Timestamp:      entry.Timestamp,
		Message:        parseMessage(entry.Type, entry.Message),
		CompactSummary: entry.IsCompactSummary,
	})
}

func parseMessage(role string, raw json.RawMessage) model.Message {
	msg := model.Message{Role: role}
	if len(raw) == 0 {
		return msg
	}
	var payload messagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return msg
	}
	if payload.Role != "" {
		msg.Role = payload.Role
	}
	msg.Content = decodeContent(payload.Content)
	return msg
}

func decodeContent(raw json.RawMessage) []model.ContentBlock {
	if len(raw) == 0 {
		return nil
	}

	// Older sessions store content as a bare string.
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

	result := make([]model.ContentBlock, 0, len(items))
	for _, item := range items {
		var block contentBlock
		if err := json.Unmarshal(item, &block); err != nil {
			continue
		}
		switch block.Type {
		case "text":
			result = append(result, model.ContentBlock{Type: model.BlockText, Text: block.Text})
		case "thinking":
			result = append(result, model.ContentBlock{Type: model.BlockThinking, Thinking: block.Thinking})
		case "tool_use":
			result = append(result, model.ContentBlock{
				Type: model.BlockToolUse,
				ToolUse: &model.ToolUse{
					Name:  block.Name,
					ID:    block.ID,
					Input: model.ParseToolInput(block.Input),
				},
			})
		case "tool_result":
			result = append(result, model.ContentBlock{
				Type: model.BlockToolResult,
				ToolResult: &model.ToolResult{
					Content: decodeResultContent(block.Content),
					IsError: block.IsError,
				},
			})
		default:
			// Unknown block types (images etc) render as their JSON text.
			result = append(result, model.ContentBlock{Type: model.BlockText, Text: string(item)})
		}
	}
	return result
}

// decodeResultContent flattens tool_result content, which may be a plain
// string or a nested array of text blocks.
func decodeResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var nested []contentBlock
	if err := json.Unmarshal(raw, &nested); err == nil {
		var parts []string
		for _, block := range nested {
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	// Allow large payloads
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
