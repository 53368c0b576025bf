package changelog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// RunKey identifies one changelog run: the evaluator tool, the time window,
// and where the transcript came from. Paths are absolutized before hashing
// so the id is stable across invocation directories.
type RunKey struct {
	Tool        string `json:"tool"`
	Start       string `json:"start"`
	End         string `json:"end"`
	SessionDir  string `json:"session_dir"`
	SourceJSONL string `json:"source_jsonl"`
}

// ComputeRunID derives the deterministic run id: the first 16 hex digits of
// the SHA-256 of the canonical key encoding.
func ComputeRunID(key RunKey) (string, error) {
	if key.SessionDir != "" {
		abs, err := filepath.Abs(key.SessionDir)
		if err != nil {
			return "", fmt.Errorf("resolve session dir: %w", err)
		}
		key.SessionDir = abs
	}
	if key.SourceJSONL != "" {
		abs, err := filepath.Abs(key.SourceJSONL)
		if err != nil {
			return "", fmt.Errorf("resolve source jsonl: %w", err)
		}
		key.SourceJSONL = abs
	}

	encoded, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("encode run key: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])[:16], nil
}
