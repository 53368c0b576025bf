package view

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"aisessions/internal/digest"
	"aisessions/internal/model"
)

// Pagination and folding thresholds for the HTML export.
const (
	promptsPerPage    = 5
	longTextThreshold = 300
)

// HTMLOptions configure the HTML export.
type HTMLOptions struct {
	// Label is the human session title shown in headers.
	Label string
	// ToolName is the display name of the source tool.
	ToolName string
}

type htmlSegment struct {
	Kind    string // text, thinking, tool, result
	Label   string
	Text    string
	Long    bool
	IsError bool
}

type htmlEvent struct {
	Role     string
	Time     string
	Segments []htmlSegment
}

// htmlGroup is one prompt turn: a user prompt and everything up to the
// next one.
type htmlGroup struct {
	Prompt string
	Events []htmlEvent
}

type htmlPage struct {
	Number  int
	File    string
	Title   string
	Tool    string
	Groups  []htmlGroup
	Prev    string
	Next    string
	Index   string
	Summary string
}

type htmlIndex struct {
	Title string
	Tool  string
	Pages []htmlPage
}

// WriteHTML renders a session as paginated HTML under outputDir and
// returns the index path. Each page holds a fixed number of prompt turns;
// long bodies fold behind a disclosure.
func WriteHTML(session *model.Session, outputDir string, opts HTMLOptions) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	title := opts.Label
	if title == "" && session.Meta != nil {
		title = session.Meta.ID
	}
	if title == "" {
		title = "Session transcript"
	}
	tool := opts.ToolName
	if tool == "" {
		tool = session.SourceFormat
	}

	groups := groupByPrompt(session.Events)
	pages := paginate(groups, title, tool)

	for _, page := range pages {
		f, err := os.Create(filepath.Join(outputDir, page.File))
		if err != nil {
			return "", fmt.Errorf("create page: %w", err)
		}
		err = pageTemplate.Execute(f, page)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("render page %s: %w", page.File, err)
		}
	}

	indexPath := filepath.Join(outputDir, "index.html")
	f, err := os.Create(indexPath)
	if err != nil {
		return "", fmt.Errorf("create index: %w", err)
	}
	defer f.Close()
	if err := indexTemplate.Execute(f, htmlIndex{Title: title, Tool: tool, Pages: pages}); err != nil {
		return "", fmt.Errorf("render index: %w", err)
	}
	return indexPath, nil
}

// groupByPrompt splits events into prompt turns: every user event with
// text opens a new group; leading non-prompt events form a preamble group.
func groupByPrompt(events []model.Event) []htmlGroup {
	var groups []htmlGroup
	current := -1

	for _, event := range events {
		rendered, ok := renderHTMLEvent(event)
		if !ok {
			continue
		}
		if event.Type == model.TypeUser {
			if text := event.Message.Text(); text != "" {
				groups = append(groups, htmlGroup{Prompt: firstPromptLine(text)})
				current = len(groups) - 1
			}
		}
		if current < 0 {
			groups = append(groups, htmlGroup{Prompt: "(session start)"})
			current = 0
		}
		groups[current].Events = append(groups[current].Events, rendered)
	}
	return groups
}

func renderHTMLEvent(event model.Event) (htmlEvent, bool) {
	out := htmlEvent{Role: event.Type, Time: event.Timestamp}
	if ts, ok := digest.ParseEventTime(event.Timestamp); ok {
		out.Time = ts.Format("2006-01-02 15:04:05")
	}

	for _, block := range event.Message.Content {
		switch block.Type {
		case model.BlockText:
			if text := strings.TrimSpace(block.Text); text != "" {
				out.Segments = append(out.Segments, htmlSegment{
					Kind: "text",
					Text: text,
					Long: len(text) > longTextThreshold,
				})
			}
		case model.BlockThinking:
			if text := strings.TrimSpace(block.Thinking); text != "" {
				out.Segments = append(out.Segments, htmlSegment{
					Kind:  "thinking",
					Label: "thinking",
					Text:  text,
					Long:  true,
				})
			}
		case model.BlockToolUse:
			if block.ToolUse == nil {
				continue
			}
			text := renderToolInputText(block.ToolUse.Input)
			out.Segments = append(out.Segments, htmlSegment{
				Kind:  "tool",
				Label: block.ToolUse.Name,
				Text:  text,
				Long:  len(text) > longTextThreshold,
			})
		case model.BlockToolResult:
			if block.ToolResult == nil {
				continue
			}
			text := strings.TrimSpace(block.ToolResult.Content)
			seg := htmlSegment{
				Kind:  "result",
				Label: "output",
				Text:  text,
				Long:  len(text) > longTextThreshold,
			}
			if block.ToolResult.IsError != nil && *block.ToolResult.IsError {
				seg.Label = "error"
				seg.IsError = true
			}
			out.Segments = append(out.Segments, seg)
		}
	}
	return out, len(out.Segments) > 0
}

func renderToolInputText(input model.ToolInput) string {
	if path := input.Path(); path != "" {
		return path
	}
	if cmd := input.Command(); cmd != "" {
		return cmd
	}
	if input.Raw != "" {
		return input.Raw
	}
	if patch := input.PatchText(); patch != "" {
		return patch
	}
	return ""
}

func paginate(groups []htmlGroup, title, tool string) []htmlPage {
	var pages []htmlPage
	for start := 0; start < len(groups); start += promptsPerPage {
		end := start + promptsPerPage
		if end > len(groups) {
			end = len(groups)
		}
		num := len(pages) + 1
		pages = append(pages, htmlPage{
			Number:  num,
			File:    fmt.Sprintf("page-%03d.html", num),
			Title:   title,
			Tool:    tool,
			Groups:  groups[start:end],
			Index:   "index.html",
			Summary: groups[start].Prompt,
		})
	}
	for i := range pages {
		if i > 0 {
			pages[i].Prev = pages[i-1].File
		}
		if i+1 < len(pages) {
			pages[i].Next = pages[i+1].File
		}
	}
	return pages
}

func firstPromptLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	runes := []rune(line)
	if len(runes) > 120 {
		return string(runes[:120]) + "…"
	}
	return line
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} — page {{.Number}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #1f2328; }
header { border-bottom: 1px solid #d0d7de; margin-bottom: 1.5rem; padding-bottom: .5rem; }
nav a { margin-right: 1rem; }
.group { border: 1px solid #d0d7de; border-radius: 8px; margin-bottom: 1.5rem; }
.group > h2 { font-size: 1rem; background: #f6f8fa; margin: 0; padding: .6rem 1rem; border-bottom: 1px solid #d0d7de; border-radius: 8px 8px 0 0; }
.event { padding: .6rem 1rem; border-bottom: 1px solid #eaeef2; }
.event:last-child { border-bottom: none; }
.meta { color: #57606a; font-size: .8rem; margin-bottom: .3rem; }
.user .meta { color: #9a6700; }
pre { background: #f6f8fa; padding: .6rem; border-radius: 6px; overflow-x: auto; white-space: pre-wrap; word-break: break-word; margin: .3rem 0; }
.error pre { background: #ffebe9; }
details > summary { cursor: pointer; color: #0969da; font-size: .85rem; }
.label { font-weight: 600; font-size: .85rem; }
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
<nav>
<a href="{{.Index}}">Index</a>
{{if .Prev}}<a href="{{.Prev}}">&laquo; Prev</a>{{end}}
{{if .Next}}<a href="{{.Next}}">Next &raquo;</a>{{end}}
<span>{{.Tool}} · page {{.Number}}</span>
</nav>
</header>
{{range .Groups}}
<section class="group">
<h2>{{.Prompt}}</h2>
{{range .Events}}
<div class="event {{.Role}}">
<div class="meta">{{.Role}} · {{.Time}}</div>
{{range .Segments}}
<div class="segment{{if .IsError}} error{{end}}">
{{if .Label}}<span class="label">{{.Label}}</span>{{end}}
{{if .Long}}<details><summary>show {{.Kind}}</summary><pre>{{.Text}}</pre></details>{{else}}<pre>{{.Text}}</pre>{{end}}
</div>
{{end}}
</div>
{{end}}
</section>
{{end}}
<nav>
{{if .Prev}}<a href="{{.Prev}}">&laquo; Prev</a>{{end}}
{{if .Next}}<a href="{{.Next}}">Next &raquo;</a>{{end}}
</nav>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #1f2328; }
h1 { border-bottom: 1px solid #d0d7de; padding-bottom: .5rem; }
li { margin-bottom: .4rem; }
.tool { color: #57606a; font-size: .9rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="tool">{{.Tool}} · {{len .Pages}} page(s)</p>
<ol>
{{range .Pages}}
<li><a href="{{.File}}">Page {{.Number}}</a> — {{.Summary}}</li>
{{end}}
</ol>
</body>
</html>
`))
