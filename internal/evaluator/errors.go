package evaluator

import "fmt"

// Stream-tail sizes carried on subprocess failures.
const (
	stderrTailChars = 4000
	stdoutTailChars = 2000
)

// ExecError reports a CLI subprocess that exited non-zero or failed to
// launch. Captured streams are sanitized before they land here.
type ExecError struct {
	Tool       string
	ExitCode   int
	StderrTail string
	StdoutTail string
	Err        error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s evaluator failed (exit %d)", e.Tool, e.ExitCode)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.StderrTail != "" {
		msg = fmt.Sprintf("%s\nstderr: %s", msg, e.StderrTail)
	}
	if e.StdoutTail != "" {
		msg = fmt.Sprintf("%s\nstdout: %s", msg, e.StdoutTail)
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// OutputError reports a subprocess that ran but produced unusable output:
// empty, unparseable, or failing the schema's hard requirements.
type OutputError struct {
	Tool   string
	Reason string
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("%s evaluator: %s", e.Tool, e.Reason)
}
