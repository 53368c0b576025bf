package evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds one evaluator subprocess run.
const DefaultTimeout = 15 * time.Minute

// Codex runs the codex CLI in non-interactive exec mode with a read-only
// sandbox and a structured output schema.
type Codex struct {
	// Model overrides the CLI's default model when non-empty.
	Model string
	// ReasoningEffort is passed as a -c override when non-empty.
	ReasoningEffort string
	// Dir is the working directory handed to codex via -C.
	Dir string
	// Timeout bounds the subprocess; zero means DefaultTimeout.
	Timeout time.Duration
}

func (c *Codex) Name() string { return "codex" }

// Evaluate feeds the prompt on stdin and reads the structured result from
// the --output-last-message file. The subprocess gets an isolated
// CODEX_HOME so its session state never mixes with the operator's; only
// auth.json is carried over.
func (c *Codex) Evaluate(ctx context.Context, prompt string) (Output, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workDir, err := os.MkdirTemp("", "aisessions-codex-*")
	if err != nil {
		return Output{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	schemaPath := filepath.Join(workDir, "output_schema.json")
	if err := os.WriteFile(schemaPath, []byte(OutputSchemaJSON), 0o644); err != nil {
		return Output{}, fmt.Errorf("write output schema: %w", err)
	}
	lastMessagePath := filepath.Join(workDir, "last_message.txt")

	codexHome, err := isolatedCodexHome(workDir)
	if err != nil {
		return Output{}, err
	}

	args := []string{"exec"}
	if c.Dir != "" {
		args = append(args, "-C", c.Dir)
	}
	if c.ReasoningEffort != "" {
		args = append(args, "-c", fmt.Sprintf("model_reasoning_effort=%q", c.ReasoningEffort))
	}
	if c.Model != "" {
		args = append(args, "-m", c.Model)
	}
	args = append(args,
		"--sandbox", "read-only",
		"--skip-git-repo-check",
		"--output-schema", schemaPath,
		"--output-last-message", lastMessagePath,
		"-",
	)

	cmd := exec.CommandContext(ctx, "codex", args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = append(os.Environ(), "CODEX_HOME="+codexHome)

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

	raw, err := os.ReadFile(lastMessagePath)
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		// Some codex builds print the final message to stdout instead of
		// writing the file.
		raw = stdout.Bytes()
	}

	obj, err := salvageJSONObject(c.Name(), stripFences(string(raw)))
	if err != nil {
		return Output{}, err
	}
	encoded, err := remarshal(obj)
	if err != nil {
		return Output{}, &OutputError{Tool: c.Name(), Reason: err.Error()}
	}
	return decodeOutput(c.Name(), encoded)
}

// isolatedCodexHome builds a throwaway CODEX_HOME seeded with the
// operator's auth.json when one exists.
func isolatedCodexHome(workDir string) (string, error) {
	home := filepath.Join(workDir, "codex-home")
	if err := os.MkdirAll(home, 0o700); err != nil {
		return "", fmt.Errorf("create codex home: %w", err)
	}

	source := os.Getenv("CODEX_HOME")
	if source == "" {
		if userHome, err := os.UserHomeDir(); err == nil {
			source = filepath.Join(userHome, ".codex")
		}
	}
	if source != "" {
		auth, err := os.ReadFile(filepath.Join(source, "auth.json"))
		if err == nil {
			if err := os.WriteFile(filepath.Join(home, "auth.json"), auth, 0o600); err != nil {
				return "", fmt.Errorf("seed codex auth: %w", err)
			}
		}
	}
	return home, nil
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
