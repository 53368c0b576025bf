package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"aisessions/internal/model"
)

// RenderEvent converts a normalized event into a printable string.
func RenderEvent(event model.Event, wrapWidth int) string {
	lines := RenderEventLines(event, wrapWidth)
	label := event.Type
	if label == "" {
		label = "event"
	}
	return fmt.Sprintf("[%s][%s]\n%s", event.Timestamp, label, strings.Join(lines, "\n"))
}

// RenderEventLines returns the formatted body lines for an event.
func RenderEventLines(event model.Event, wrapWidth int) []string {
	body := renderBlocks(event.Message.Content, wrapWidth)
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}

// renderBlocks joins content blocks into a printable string with optional
// wrapping.
func renderBlocks(blocks []model.ContentBlock, wrapWidth int) string {
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case model.BlockText:
			parts = append(parts, wrapBody(strings.TrimSpace(block.Text), wrapWidth))
		case model.BlockThinking:
			parts = append(parts, "[thinking] "+wrapBody(strings.TrimSpace(block.Thinking), wrapWidth))
		case model.BlockToolUse:
			use := block.ToolUse
			if use == nil {
				continue
			}
			parts = append(parts, fmt.Sprintf("Tool: %s", use.Name))
			if input := renderToolInput(use.Input); input != "" {
				parts = append(parts, "Input:\n"+input)
			}
		case model.BlockToolResult:
			res := block.ToolResult
			if res == nil {
				continue
			}
			label := "Output"
			if res.IsError != nil && *res.IsError {
				label = "Error"
			}
			formatted := formatJSON(res.Content)
			if formatted == res.Content {
				parts = append(parts, fmt.Sprintf("%s: %s", label, res.Content))
			} else {
				parts = append(parts, fmt.Sprintf("%s:\n%s", label, formatted))
			}
		default:
			parts = append(parts, fmt.Sprintf("[%s] %s", block.Type, wrapBody(strings.TrimSpace(block.Text), wrapWidth)))
		}
	}
	return strings.Join(parts, "\n")
}

func renderToolInput(input model.ToolInput) string {
	if input.Raw != "" {
		return formatJSON(input.Raw)
	}
	if input.Structured == nil {
		return ""
	}
	encoded, err := json.MarshalIndent(input.Structured, "", "  ")
	if err != nil {
		return ""
	}
	return string(encoded)
}

func wrapBody(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
		} else {
			current += " " + word
		}
	}
	lines = append(lines, current)

	return strings.Join(lines, "\n")
}

func formatJSON(raw string) string {
	if raw == "" || !json.Valid([]byte(raw)) {
		return raw
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err == nil {
		return buf.String()
	}
	return raw
}
