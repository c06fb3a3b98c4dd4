package stream

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Cumulative builds the answer of the three-call protocol, where the answer
// arrives on its own stream. Every update carries the normalized text of the
// whole answer so far, so citation markers split across chunks still get
// rewritten.
type Cumulative struct {
	emit      func(MarkdownUpdate)
	normalize normalizer

	answer  strings.Builder
	pending []byte
	last    string
}

func NewCumulative(emit func(MarkdownUpdate), opts ...Option) *Cumulative {
	o := buildOptions(opts)
	return &Cumulative{emit: emit, normalize: o.normalize}
}

func verbatim(s string) string { return s }

// Write consumes one chunk of the answer stream and emits the updated answer.
func (c *Cumulative) Write(p []byte) (int, error) {
	c.pending = append(c.pending, p...)
	n := decodeRecords(c.pending, false, verbatim, c.appendText)
	c.pending = append(c.pending[:0], c.pending[n:]...)
	c.publish()
	return len(p), nil
}

// Close flushes the last unterminated record.
func (c *Cumulative) Close() error {
	decodeRecords(c.pending, true, verbatim, c.appendText)
	c.pending = nil
	c.publish()
	return nil
}

// Text returns the normalized answer as last emitted.
func (c *Cumulative) Text() string {
	return c.last
}

func (c *Cumulative) appendText(s string) {
	c.answer.WriteString(s)
}

func (c *Cumulative) publish() {
	text := c.answer.String()
	// A partial JSON record is not shown until it completes.
	if tail := bytes.TrimLeft(c.pending, " \t"); len(tail) > 0 && tail[0] != '{' {
		text += string(completeRunes(c.pending))
	}
	text = c.normalize(text)
	if text == c.last {
		return
	}
	c.last = text
	if c.emit != nil {
		c.emit(MarkdownUpdate{Text: text, Cumulative: true})
	}
}

// completeRunes drops a multi-byte sequence cut off at the end of b.
func completeRunes(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
