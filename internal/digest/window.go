// Package digest turns a normalized session into a time-windowed,
// size-bounded summary of the work performed: prompts, tool calls, touched
// files, test outcomes, and commits.
package digest

import (
	"errors"
	"fmt"
	"time"

	"aisessions/internal/model"
)

// ErrInvalidWindow reports an unparseable start or end bound. It is fatal
// to the session pipeline and never retried.
var ErrInvalidWindow = errors.New("invalid window timestamp")

// Window bounds the events counted as the session's delta. Raw strings are
// retained because they are echoed into the digest and ledger verbatim.
type Window struct {
	Start    time.Time
	End      time.Time
	StartRaw string
	EndRaw   string
}

// ParseWindow validates the start/end bounds.
func ParseWindow(start, end string) (Window, error) {
	startAt, ok := parseTime(start)
	if !ok {
		return Window{}, fmt.Errorf("%w: start %q", ErrInvalidWindow, start)
	}
	endAt, ok := parseTime(end)
	if !ok {
		return Window{}, fmt.Errorf("%w: end %q", ErrInvalidWindow, end)
	}
	return Window{Start: startAt, End: endAt, StartRaw: start, EndRaw: end}, nil
}

// Slice partitions events into before-window and within-window in one
// linear pass, relying on the source order being chronological. Events
// after the window or without a parseable timestamp belong to neither
// partition.
func Slice(events []model.Event, w Window) (before, within []model.Event) {
	for _, event := range events {
		ts, ok := parseTime(event.Timestamp)
		if !ok {
			continue
		}
		switch {
		case ts.Before(w.Start):
			before = append(before, event)
		case ts.After(w.End):
			// Discarded: not context, not delta.
		default:
			within = append(within, event)
		}
	}
	return before, within
}

// timeLayouts covers RFC 3339 (with or without fractional seconds) plus
// timezone-naive variants, which are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseEventTime parses an event timestamp with the same layouts the
// window slicer accepts.
func ParseEventTime(value string) (time.Time, bool) {
	return parseTime(value)
}

func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
