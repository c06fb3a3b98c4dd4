package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/cli/go-gh/v2/pkg/markdown"
	"github.com/dlclark/regexp2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/markis/ragsearch/internal/config"
	"github.com/markis/ragsearch/internal/stream"
)

var citationLink = regexp2.MustCompile(`\[citation\]\((\d+)\)`, regexp2.ECMAScript)

// TerminalRenderer prints a search session to a terminal as it streams in.
type TerminalRenderer struct {
	out       io.Writer
	errOut    io.Writer
	markdown  *glamour.TermRenderer
	plainText bool

	answer   string
	printed  int
	finished bool
	status   int
	err      error
}

func NewTerminalRenderer(out, errOut io.Writer, cfg config.Render, usePlainText bool) (*TerminalRenderer, error) {
	t := &TerminalRenderer{
		out:       out,
		errOut:    errOut,
		plainText: usePlainText,
	}
	if usePlainText {
		return t, nil
	}

	style := glamour.WithAutoStyle()
	if cfg.Theme != "" && cfg.Theme != "auto" {
		style = markdown.WithTheme(cfg.Theme)
	}
	md, err := glamour.NewTermRenderer(style, markdown.WithWrap(cfg.Wrap))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create markdown renderer")
	}
	t.markdown = md
	return t, nil
}

// Handlers returns the callbacks that drive the renderer.
func (t *TerminalRenderer) Handlers() stream.Handlers {
	return stream.Handlers{
		OnSources:  t.renderSources,
		OnMarkdown: t.renderMarkdown,
		OnRelates:  t.renderRelated,
		OnError:    t.renderError,
	}
}

// Finish prints whatever part of the answer has not been printed yet and
// returns the first rendering error, if any.
func (t *TerminalRenderer) Finish() error {
	if t.err != nil || t.finished {
		return t.err
	}
	t.finished = true
	text := display(t.answer)
	if t.printed < len(text) {
		if remaining := text[t.printed:]; strings.TrimSpace(remaining) != "" {
			t.renderContent(remaining)
		}
		t.printed = len(text)
	}
	fmt.Fprintln(t.out)
	return t.err
}

// Status is the status reported through the error callback, or zero.
func (t *TerminalRenderer) Status() int {
	return t.status
}

// Answer is the answer received so far, as sent by the service.
func (t *TerminalRenderer) Answer() string {
	return t.answer
}

func (t *TerminalRenderer) renderSources(sources []stream.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(t.out, "Sources:")
	for i, s := range sources {
		fmt.Fprintf(t.out, "  [%d] %s\n", i+1, describeSource(s))
	}
	fmt.Fprintln(t.out)
}

func (t *TerminalRenderer) renderMarkdown(u stream.MarkdownUpdate) {
	t.answer = u.Apply(t.answer)
	text := display(t.answer)
	if t.printed >= len(text) {
		return
	}
	if idx := findMarkdownBreakPoint(text[t.printed:]); idx > 0 {
		t.renderContent(text[t.printed : t.printed+idx])
		t.printed += idx
	}
}

func (t *TerminalRenderer) renderRelated(questions []stream.RelatedQuestion) {
	if len(questions) == 0 {
		return
	}
	// The answer is complete once related questions arrive.
	if err := t.Finish(); err != nil {
		return
	}
	fmt.Fprintln(t.out, "Related:")
	for _, q := range questions {
		fmt.Fprintf(t.out, "  - %s\n", q.Question)
	}
}

func (t *TerminalRenderer) renderError(status int) {
	t.status = status
	fmt.Fprintf(t.errOut, "Error: search failed with status %d\n", status)
}

func (t *TerminalRenderer) renderContent(content string) {
	if t.err != nil {
		return
	}
	if t.plainText {
		fmt.Fprint(t.out, content)
		return
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if strings.HasPrefix(content, "#") {
		fmt.Fprintln(t.out)
	}

	mdContent, err := t.markdown.Render(content)
	if err != nil {
		t.err = errors.Wrap(err, "failed to render markdown")
		return
	}

	fmt.Fprintln(t.out, strings.TrimSpace(mdContent))
}

// display normalizes citations and turns citation links into terminal
// footnotes.
func display(answer string) string {
	text := stream.NormalizeCitations(answer)
	out, err := citationLink.Replace(text, "[$1]", -1, -1)
	if err != nil {
		return text
	}
	return out
}

func describeSource(s stream.Source) string {
	var fields map[string]any
	if err := jsoniter.Unmarshal(s, &fields); err != nil {
		return string(s)
	}
	title := firstString(fields, "name", "title")
	link := firstString(fields, "url", "link")
	switch {
	case title != "" && link != "":
		return title + " - " + link
	case title != "":
		return title
	case link != "":
		return link
	default:
		return string(s)
	}
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func findMarkdownBreakPoint(content string) int {
	const marker string = "\n\n"
	lastBreak := -1
	idx := strings.LastIndex(content, marker)
	if idx > lastBreak {
		lastBreak = idx + len(marker)
	}
	return lastBreak
}
