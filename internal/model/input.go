package model

import (
	"encoding/json"

	"strings"
)

// ToolInput models the loosely-typed input of a tool call as a tagged
// union: Structured when the source carried a JSON object, Raw when it
// carried an opaque string (for example unparseable function_call
// arguments). At most one side is set.
type ToolInput struct {
	Structured map[string]any
	Raw        string
}

// StructuredInput wraps a key/value map as a ToolInput.
func StructuredInput(fields map[string]any) ToolInput {
	return ToolInput{Structured: fields}
}

// RawInput wraps an opaque string as a ToolInput.
func RawInput(s string) ToolInput {
	return ToolInput{Raw: s}
}

// ParseToolInput decodes a JSON value into a ToolInput: objects become
// Structured, everything else (including invalid JSON) passes through as
// Raw text.
func ParseToolInput(raw json.RawMessage) ToolInput {
	if len(raw) == 0 {
		return ToolInput{}
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		return ToolInput{Structured: fields}
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return ToolInput{Raw: asString}
	}
	return ToolInput{Raw: string(raw)}
}

// IsZero reports whether the input carries neither variant.
func (in ToolInput) IsZero() bool {
	return in.Structured == nil && in.Raw == ""
}

// MarshalJSON renders the active variant directly.
func (in ToolInput) MarshalJSON() ([]byte, error) {
	if in.Structured != nil {
		return json.Marshal(in.Structured)
	}
	return json.Marshal(in.Raw)
}

// UnmarshalJSON mirrors ParseToolInput for round-tripping normalized events.
func (in *ToolInput) UnmarshalJSON(data []byte) error {
	*in = ParseToolInput(data)
	return nil
}

func (in ToolInput) stringField(keys ...string) string {
	if in.Structured == nil {
		return ""
	}
	for _, key := range keys {
		if val, ok := in.Structured[key].(string); ok {
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// Path returns the file path named by the input, if any. Tools disagree on
// the key, so all observed spellings are probed.
func (in ToolInput) Path() string {
	return in.stringField("path", "file_path", "filepath", "filename")
}

// Command returns the shell command carried by the input, if any.
func (in ToolInput) Command() string {
	return in.stringField("cmd", "command")
}

// PatchText returns the raw patch payload of a patch-application call: the
// whole Raw input, or the patch/arguments field of a structured one.
func (in ToolInput) PatchText() string {
	if in.Raw != "" {
		return in.Raw
	}
	return in.stringField("patch", "arguments")
}
