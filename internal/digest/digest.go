package digest

import (
	"aisessions/internal/model"
	"aisessions/internal/parser"
)

// DefaultPriorPrompts is how many pre-window user prompts are kept as
// context.
const DefaultPriorPrompts = 3

// Build parses the transcript at path and assembles the digest for the
// [start, end] window.
func Build(path, start, end string, priorPrompts int) (*Digest, error) {
	session, err := parser.ParseSessionFile(path)
	if err != nil {
		return nil, err
	}
	return FromSession(session, start, end, priorPrompts)
}

// FromSession assembles a digest from an already-normalized session. Fails
// only when the window bounds cannot be parsed.
func FromSession(session *model.Session, start, end string, priorPrompts int) (*Digest, error) {
	window, err := ParseWindow(start, end)
	if err != nil {
		return nil, err
	}

	before, within := Slice(session.Events, window)

	sourceFormat := session.SourceFormat
	if sourceFormat == "" {
		sourceFormat = "unknown"
	}

	return &Digest{
		SchemaVersion: SchemaVersion,
		SourceFormat:  sourceFormat,
		Window:        WindowRef{Start: start, End: end},
		Context:       Context{PriorUserPrompts: PriorPrompts(before, priorPrompts)},
		Delta:         ExtractDelta(within),
	}, nil
}
