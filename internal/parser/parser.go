// Package parser detects the source format of a session transcript and
// dispatches to the matching normalizer.
package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"aisessions/internal/claude"
	"aisessions/internal/codex"
	"aisessions/internal/model"
)

// ParseSessionFile normalizes a transcript file of either supported format.
// JSONL files are sniffed by their first parseable object: Codex rollout
// lines wrap everything in {type, timestamp, payload}; anything else is a
// Claude Code log. Non-JSONL files are exported Claude JSON documents.
func ParseSessionFile(path string) (*model.Session, error) {
	if strings.HasSuffix(path, ".jsonl") {
		first, err := peekFirstObject(path)
		if err != nil {
			return nil, err
		}
		if looksLikeCodexRollout(first) {
			return codex.ParseFile(path)
		}
		return claude.ParseFile(path)
	}
	return claude.ParseFile(path)
}

// peekFirstObject returns the first JSON object found in a JSONL file, or
// nil when no line parses.
func peekFirstObject(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	scanner := bufio.NewScanner(file)
	const maxCapacity = 8 * 1024 * 1024
	scanner.Buffer(make([]byte, 1024), maxCapacity)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		return obj, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session file: %w", err)
	}
	return nil, nil
}

func looksLikeCodexRollout(first map[string]any) bool {
	if first == nil {
		return false
	}
	if _, ok := first["payload"]; !ok {
		return false
	}
	if _, ok := first["timestamp"]; !ok {
		return false
	}
	switch first["type"] {
	case codex.EntryTypeSessionMeta, codex.EntryTypeResponseItem, codex.EntryTypeEventMsg:
		return true
	}
	return false
}
