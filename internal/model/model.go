// Package model defines the normalized session transcript model shared by
// all source-format parsers. Codex rollouts and Claude Code logs both reduce
// to an ordered list of Events carrying role-tagged messages.
package model

import (
	"strings"
	"time"
)

// Event types after normalization. Source records of any other type are
// dropped by the parsers.
const (
	TypeUser      = "user"
	TypeAssistant = "assistant"
)

// ContentBlock type tags.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Event is one normalized transcript entry. Events preserve source order;
// Timestamp is kept as the raw source string because unparseable timestamps
// are legal (such events are excluded from windowing, not rejected).
type Event struct {
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
	Message   Message `json:"message"`

	// CompactSummary marks continuation/compacted-summary records
	// (Claude Code isCompactSummary).
	CompactSummary bool `json:"is_compact_summary,omitempty"`
}

// Message is a role plus an ordered sequence of content blocks.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a tagged variant: exactly one of the payload fields is
// meaningful for a given Type.
type ContentBlock struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	Thinking   string      `json:"thinking,omitempty"`
	ToolUse    *ToolUse    `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolUse is an assistant-initiated tool call.
type ToolUse struct {
	Name  string    `json:"name"`
	ID    string    `json:"id,omitempty"`
	Input ToolInput `json:"input"`
}

// ToolResult is the textual outcome of a tool call. IsError is nil when the
// source record carried no error flag; consumers may infer one from the
// content (exec exit markers).
type ToolResult struct {
	Content string `json:"content"`
	IsError *bool  `json:"is_error,omitempty"`
}

// SessionMeta holds run metadata from a session_meta record (format A) or
// the first valid entry (format B).
type SessionMeta struct {
	ID         string
	Path       string
	CWD        string
	Originator string
	CLIVersion string
	StartedAt  time.Time
}

// Source format tags reported by the normalizer.
const (
	FormatCodexRollout = "codex_rollout"
	FormatClaudeJSONL  = "claude_jsonl"
	FormatClaudeJSON   = "claude_json"
)

// Session is the output of normalization: ordered events plus the detected
// source format tag.
type Session struct {
	Events       []Event
	SourceFormat string
	Meta         *SessionMeta
}

// TextBlocks returns the trimmed non-empty text blocks of the message, in
// order.
func (m Message) TextBlocks() []string {
	var texts []string
	for _, block := range m.Content {
		if block.Type != BlockText {
			continue
		}
		if txt := strings.TrimSpace(block.Text); txt != "" {
			texts = append(texts, txt)
		}
	}
	return texts
}

// Text joins all text blocks with single spaces, mirroring how prompts are
// displayed and filtered.
func (m Message) Text() string {
	return strings.Join(m.TextBlocks(), " ")
}

// ToolBlocks returns the tool_use and tool_result blocks of the message, in
// order.
func (m Message) ToolBlocks() []ContentBlock {
	var blocks []ContentBlock
	for _, block := range m.Content {
		if block.Type == BlockToolUse || block.Type == BlockToolResult {
			blocks = append(blocks, block)
		}
	}
	return blocks
}
