package model

import (
	"regexp"
	"strconv"
)

// Codex wraps shell output with a textual exit marker instead of a
// structured code. Both parsers and the fact extractor recover the code
// from it.
var exitMarkerRe = regexp.MustCompile(`Process exited with code (\d+)`)

// ExecExitCode extracts the process exit code from tool output text.
// The second return is false when no marker is present.
func ExecExitCode(output string) (int, bool) {
	m := exitMarkerRe.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

// ExecLooksLikeError reports whether the output carries a non-zero exit
// marker. Absence of a marker is not an error.
func ExecLooksLikeError(output string) bool {
	code, ok := ExecExitCode(output)
	return ok && code != 0
}
