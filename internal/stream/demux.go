package stream

import (
	"bytes"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type state int

const (
	awaitingSources state = iota
	streamingContent
	awaitingRelated
	closed
)

func (s state) String() string {
	switch s {
	case awaitingSources:
		return "awaiting-sources"
	case streamingContent:
		return "streaming-content"
	case awaitingRelated:
		return "awaiting-related"
	default:
		return "closed"
	}
}

// Demuxer splits the single-stream response of the answer service into its
// source, answer and related-question segments.
//
// Feed it the response body chunk by chunk through Write and call Close at end
// of stream. Callbacks fire synchronously from Write and Close as soon as a
// segment is unambiguous, so the result does not depend on how the body was
// chunked. Answer text is delivered as incremental MarkdownUpdates.
//
// A Demuxer is not safe for concurrent use.
type Demuxer struct {
	h         Handlers
	log       zerolog.Logger
	normalize normalizer

	state state
	buf   []byte
	// scanned is the prefix of buf already searched for the pending sentinel.
	scanned int
}

// Option configures a Demuxer or a Cumulative.
type Option func(*options)

type options struct {
	log       zerolog.Logger
	normalize normalizer
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFullWidthCitations also normalizes 【citation:N】 markers.
func WithFullWidthCitations() Option {
	return func(o *options) { o.normalize = NormalizeCitationsFullWidth }
}

func buildOptions(opts []Option) options {
	o := options{log: log.Logger, normalize: NormalizeCitations}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewDemuxer(h Handlers, opts ...Option) *Demuxer {
	o := buildOptions(opts)
	return &Demuxer{
		h:         h,
		log:       o.log,
		normalize: o.normalize,
	}
}

// Write consumes one chunk of the response body. It never fails.
func (d *Demuxer) Write(p []byte) (int, error) {
	if d.state == closed {
		return len(p), nil
	}
	d.buf = append(d.buf, p...)
	d.advance()
	return len(p), nil
}

// Close signals end of stream and flushes whatever can still be resolved.
//
// A source segment whose sentinel arrived but never parsed is reported as a
// 500. An unterminated related-question list is dropped without a callback.
func (d *Demuxer) Close() error {
	switch d.state {
	case awaitingSources:
		if len(bytes.TrimSpace(d.buf)) == 0 {
			break
		}
		if d.find(SentinelSources) >= 0 {
			d.log.Warn().Int("bytes", len(d.buf)).Msg("source segment never resolved")
			d.h.fail(http.StatusInternalServerError)
			break
		}
		// No sentinel at all: the body was an answer without sources.
		d.enter(streamingContent)
		d.advance()
		if d.state == streamingContent {
			d.flushContent()
		}
	case streamingContent:
		d.flushContent()
	case awaitingRelated:
		if len(bytes.TrimSpace(d.buf)) > 0 {
			d.log.Debug().Int("bytes", len(d.buf)).Msg("related questions never closed, dropping")
		}
	}
	d.buf = nil
	d.state = closed
	return nil
}

// Done reports whether the related-question segment has been delivered.
func (d *Demuxer) Done() bool {
	return d.state == closed
}

func (d *Demuxer) advance() {
	for {
		var more bool
		switch d.state {
		case awaitingSources:
			more = d.resolveSources()
		case streamingContent:
			more = d.streamContent()
		case awaitingRelated:
			d.resolveRelated()
		}
		if !more {
			return
		}
	}
}

func (d *Demuxer) resolveSources() bool {
	trimmed := bytes.TrimLeft(d.buf, " \t\r\n")
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] != '[' && trimmed[0] != '{' {
		d.enter(streamingContent)
		return true
	}

	i := d.find(SentinelSources)
	if i < 0 {
		return false
	}
	sources, err := ParseSources(d.buf[:i])
	if err != nil {
		d.log.Debug().Err(err).Msg("source segment incomplete, waiting for more input")
		return false
	}

	d.h.sources(sources)
	d.consume(i + len(SentinelSources))
	d.enter(streamingContent)
	return true
}

func (d *Demuxer) streamContent() bool {
	if i := d.find(SentinelRelated); i >= 0 {
		decodeRecords(d.buf[:i], true, d.normalize, d.emitMarkdown)
		d.consume(i + len(SentinelRelated))
		d.enter(awaitingRelated)
		return true
	}
	d.consume(decodeRecords(d.buf, false, d.normalize, d.emitMarkdown))
	return false
}

func (d *Demuxer) flushContent() {
	decodeRecords(d.buf, true, d.normalize, d.emitMarkdown)
	d.buf = d.buf[:0]
}

func (d *Demuxer) resolveRelated() {
	questions, ok := parseRelatedList(string(d.buf))
	if !ok {
		return
	}
	d.h.relates(questions)
	d.buf = nil
	d.state = closed
}

func (d *Demuxer) emitMarkdown(text string) {
	d.h.markdown(MarkdownUpdate{Text: text})
}

func (d *Demuxer) enter(s state) {
	d.log.Trace().Stringer("from", d.state).Stringer("to", s).Msg("demuxer state")
	d.state = s
	d.scanned = 0
}

// find returns the offset of tok in buf, resuming the search where the last
// unsuccessful one stopped.
func (d *Demuxer) find(tok string) int {
	from := d.scanned - len(tok) + 1
	if from < 0 {
		from = 0
	}
	i := bytes.Index(d.buf[from:], []byte(tok))
	if i < 0 {
		d.scanned = len(d.buf)
		return -1
	}
	d.scanned = from + i
	return from + i
}

// consume drops the first n bytes of buf.
func (d *Demuxer) consume(n int) {
	if n == 0 {
		return
	}
	d.buf = append(d.buf[:0], d.buf[n:]...)
	d.scanned -= n
	if d.scanned < 0 {
		d.scanned = 0
	}
}

// ParseSources accepts either a bare JSON array or an object with a contexts
// array.
func ParseSources(b []byte) ([]Source, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errors.New("empty source segment")
	}
	b = append([]byte(nil), b...)

	if b[0] == '[' {
		var sources []Source
		if err := jsoniter.Unmarshal(b, &sources); err != nil {
			return nil, errors.Wrap(err, "decode source list")
		}
		return sources, nil
	}

	var wrapped struct {
		Contexts []Source `json:"contexts"`
	}
	if err := jsoniter.Unmarshal(b, &wrapped); err != nil {
		return nil, errors.Wrap(err, "decode source object")
	}
	if wrapped.Contexts == nil {
		return nil, errors.New("source object has no contexts array")
	}
	return wrapped.Contexts, nil
}
