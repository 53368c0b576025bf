package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Claude runs the claude CLI in print mode with tools disabled and a JSON
// output schema.
type Claude struct {
	// Model overrides the CLI's default model when non-empty.
	Model string
	// Dir is the subprocess working directory; empty means inherit.
	Dir string
	// Timeout bounds the subprocess; zero means DefaultTimeout.
	Timeout time.Duration
}

func (c *Claude) Name() string { return "claude" }

// claudeEnvelope is the --output-format json wrapper around the response.
type claudeEnvelope struct {
	IsError          bool            `json:"is_error"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	Result           string          `json:"result"`
}

// Evaluate runs claude --print and unwraps its JSON envelope. The
// structured_output field is authoritative; when a build omits it, the
// result text is salvaged for an embedded JSON object.
func (c *Claude) Evaluate(ctx context.Context, prompt string) (Output, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"--print",
		"--output-format", "json",
		"--json-schema", OutputSchemaJSON,
		"--tools", "",
	}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	args = append(args, prompt)

	cmd := exec.CommandContext(ctx, "claude", args...)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return Output{}, &ExecError{
			Tool:       c.Name(),
			ExitCode:   exitCodeOf(err),
			StderrTail: sanitizeTail(stderr.String(), stderrTailChars),
			StdoutTail: sanitizeTail(stdout.String(), stdoutTailChars),
			Err:        err,
		}
	}

	var envelope claudeEnvelope
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &envelope); err != nil {
		return Output{}, &OutputError{
			Tool:   c.Name(),
			Reason: fmt.Sprintf("envelope was not valid JSON: %s", sanitizeTail(stdout.String(), stdoutTailChars)),
		}
	}
	if envelope.IsError {
		return Output{}, &OutputError{
			Tool:   c.Name(),
			Reason: fmt.Sprintf("reported an error: %s", sanitizeTail(envelope.Result, stdoutTailChars)),
		}
	}

	if len(bytes.TrimSpace(envelope.StructuredOutput)) > 0 && string(envelope.StructuredOutput) != "null" {
		return decodeOutput(c.Name(), envelope.StructuredOutput)
	}

	obj, err := salvageJSONObject(c.Name(), stripFences(envelope.Result))
	if err != nil {
		return Output{}, err
	}
	encoded, err := remarshal(obj)
	if err != nil {
		return Output{}, &OutputError{Tool: c.Name(), Reason: err.Error()}
	}
	return decodeOutput(c.Name(), encoded)
}
