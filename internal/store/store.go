// Package store provides session enumeration and search over transcript
// trees.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"aisessions/internal/digest"
	"aisessions/internal/model"
	"aisessions/internal/parser"
)

var errStop = errors.New("stop iteration")

// SessionSummary is one row in a session listing.
type SessionSummary struct {
	ID              string
	Path            string
	CWD             string
	Tool            string
	StartedAt       time.Time
	Summary         string
	MessageCount    int
	DurationSeconds int
}

// ListOptions controls how sessions are enumerated.
type ListOptions struct {
	Root       string
	CWD        string
	ExactCWD   bool
	After      *time.Time
	Before     *time.Time
	Limit      int
	MaxSummary int
}

// ListResult contains session summaries and non-fatal warnings.
type ListResult struct {
	Summaries []SessionSummary
	Warnings  []error
}

// ListSessions enumerates transcripts under Root according to options.
// Files that fail to parse become warnings, never fatal errors.
func ListSessions(opts ListOptions) (ListResult, error) {
	root := opts.Root
	if root == "" {
		return ListResult{}, errors.New("root directory is required")
	}

	var result ListResult

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("walk %s: %w", path, walkErr))
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}

		session, err := parser.ParseSessionFile(path)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("parse %s: %w", path, err))
			return nil
		}

		summary := summarizeSession(session, path)
		if opts.MaxSummary > 0 {
			summary.Summary = truncate(summary.Summary, opts.MaxSummary)
		}

		if opts.CWD != "" {
			if opts.ExactCWD {
				if summary.CWD != opts.CWD {
					return nil
				}
			} else if !strings.HasPrefix(summary.CWD, opts.CWD) {
				return nil
			}
		}
		if opts.After != nil && summary.StartedAt.Before(*opts.After) {
			return nil
		}
		if opts.Before != nil && summary.StartedAt.After(*opts.Before) {
			return nil
		}

		result.Summaries = append(result.Summaries, summary)
		return nil
	})
	if err != nil {
		return result, err
	}

	sort.Slice(result.Summaries, func(i, j int) bool {
		return result.Summaries[i].StartedAt.After(result.Summaries[j].StartedAt)
	})

	if opts.Limit > 0 && len(result.Summaries) > opts.Limit {
		result.Summaries = result.Summaries[:opts.Limit]
	}

	return result, nil
}

// FindSessionPath searches for a transcript whose session id matches id.
func FindSessionPath(root, id string) (string, error) {
	if root == "" {
		return "", errors.New("root directory is required")
	}
	if id == "" {
		return "", errors.New("session id is required")
	}

	var matched string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		session, err := parser.ParseSessionFile(path)
		if err != nil {
			return nil
		}
		if session.Meta != nil && session.Meta.ID == id {
			matched = path
			return errStop
		}
		return nil
	})
	if matched != "" {
		return matched, nil
	}
	if err != nil && !errors.Is(err, errStop) {
		return "", err
	}
	return "", fmt.Errorf("session id %s not found under %s", id, root)
}

func summarizeSession(session *model.Session, path string) SessionSummary {
	summary := SessionSummary{
		Path: path,
		Tool: session.SourceFormat,
	}
	if session.Meta != nil {
		summary.ID = session.Meta.ID
		summary.CWD = session.Meta.CWD
		summary.StartedAt = session.Meta.StartedAt
	}

	var first, last time.Time
	for _, event := range session.Events {
		summary.MessageCount++
		ts, ok := digest.ParseEventTime(event.Timestamp)
		if !ok {
			continue
		}
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
		if summary.Summary == "" && event.Type == model.TypeUser {
			if text := event.Message.Text(); text != "" {
				summary.Summary = firstLine(text)
			}
		}
	}
	if summary.StartedAt.IsZero() {
		summary.StartedAt = first
	}
	if !summary.StartedAt.IsZero() && last.After(summary.StartedAt) {
		summary.DurationSeconds = int(last.Sub(summary.StartedAt).Seconds())
	}
	return summary
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}
