package digest

// SchemaVersion of the digest JSON fed to the evaluator.
const SchemaVersion = 1

// PromptRef is one user prompt (or assistant text snippet) with its source
// timestamp, truncated for the digest.
type PromptRef struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// CallResult is the outcome attached to a tool call. ContentSnippet is
// recorded only for errors, tail-truncated.
type CallResult struct {
	Timestamp      string `json:"timestamp"`
	IsError        bool   `json:"is_error"`
	ExitCode       *int   `json:"exit_code,omitempty"`
	ContentSnippet string `json:"content_snippet,omitempty"`
}

// ToolCall is one tool invocation within the window. Created when a
// tool_use block is seen, mutated once when its result attaches, immutable
// thereafter.
type ToolCall struct {
	Timestamp    string      `json:"timestamp"`
	Tool         string      `json:"tool"`
	Input        any         `json:"input,omitempty"`
	Result       *CallResult `json:"result"`
	PatchSnippet string      `json:"patch_snippet,omitempty"`
	PatchFiles   []string    `json:"patch_files,omitempty"`
	PathHint     string      `json:"path_hint,omitempty"`
	Cmd          string      `json:"cmd,omitempty"`
	IsTest       bool        `json:"is_test,omitempty"`
}

// Move records a file rename extracted from a patch payload.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TouchedFiles aggregates deduplicated file paths seen in patch payloads
// and path hints. Paths are as-seen strings; no normalization is applied.
type TouchedFiles struct {
	Created  []string `json:"created"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
	Moved    []Move   `json:"moved"`
}

// TestRun is a detected test command and its derived outcome
// (pass/fail/unknown).
type TestRun struct {
	Cmd    string `json:"cmd"`
	Result string `json:"result"`
}

// Test outcomes.
const (
	TestPass    = "pass"
	TestFail    = "fail"
	TestUnknown = "unknown"
)

// Commit is a local git commit detected in assistant or tool output.
type Commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// Delta holds the facts extracted from within-window events.
type Delta struct {
	UserPrompts   []PromptRef  `json:"user_prompts"`
	AssistantText []PromptRef  `json:"assistant_text"`
	ToolCalls     []ToolCall   `json:"tool_calls"`
	ToolErrors    []CallResult `json:"tool_errors"`
	TouchedFiles  TouchedFiles `json:"touched_files"`
	Tests         []TestRun    `json:"tests"`
	Commits       []Commit     `json:"commits"`
}

// WindowRef echoes the caller-supplied bounds.
type WindowRef struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Context carries the most recent user prompts from before the window.
type Context struct {
	PriorUserPrompts []PromptRef `json:"prior_user_prompts"`
}

// Digest is the complete structured summary handed to the evaluator. It is
// never persisted; only the evaluator-derived changelog entry is.
type Digest struct {
	SchemaVersion int       `json:"schema_version"`
	Mode          string    `json:"digest_mode,omitempty"`
	SourceFormat  string    `json:"source_format"`
	Window        WindowRef `json:"window"`
	Context       Context   `json:"context"`
	Delta         Delta     `json:"delta"`
}
