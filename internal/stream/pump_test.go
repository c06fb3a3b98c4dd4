package stream

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkBody hands out one chunk per Read and counts Close calls.
type chunkBody struct {
	chunks []string
	reads  int
	closes int
	err    error
}

func (b *chunkBody) Read(p []byte) (int, error) {
	if b.reads >= len(b.chunks) {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[b.reads])
	b.reads++
	return n, nil
}

func (b *chunkBody) Close() error {
	b.closes++
	return nil
}

func TestPumpDeliversChunks(t *testing.T) {
	body := &chunkBody{chunks: []string{`[{"id":1}]` + SentinelSources, "hello ", "world\n"}}
	rec := &recorder{}
	d := NewDemuxer(rec.handlers(), WithLogger(zerolog.Nop()))

	require.NoError(t, Pump(context.Background(), body, d))
	require.NoError(t, d.Close())

	assert.Equal(t, "hello world\n", rec.markdown)
	assert.Equal(t, 1, body.closes)
}

func TestPumpStopsWhenConsumerIsDone(t *testing.T) {
	body := &chunkBody{chunks: []string{`[]` + SentinelSources + "a\n" + SentinelRelated + `["q"]`, "never read"}}
	rec := &recorder{}
	d := NewDemuxer(rec.handlers(), WithLogger(zerolog.Nop()))

	require.NoError(t, Pump(context.Background(), body, d))

	assert.Equal(t, 1, body.reads)
	assert.Equal(t, []RelatedQuestion{{Question: "q"}}, rec.relates)
}

func TestPumpCancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := &chunkBody{chunks: []string{
		`[{"id":1}]` + SentinelSources + "first\nsecond\n",
		"third\n",
		SentinelRelated + `["q"]`,
	}}
	rec := &recorder{}
	h := rec.handlers()
	onSources := h.OnSources
	h.OnSources = func(s []Source) {
		onSources(s)
		cancel()
	}
	d := NewDemuxer(Guard(ctx, h), WithLogger(zerolog.Nop()))

	err := Pump(ctx, body, d)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{`sources:{"id":1}`}, rec.events)
	assert.Equal(t, 1, body.reads)
	assert.Equal(t, 1, body.closes)
}

func TestPumpReadError(t *testing.T) {
	boom := errors.New("connection reset")
	body := &chunkBody{chunks: []string{"partial"}, err: boom}

	err := Pump(context.Background(), body, io.Discard)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, body.closes)
}

func TestOnceCloser(t *testing.T) {
	body := &chunkBody{}
	rc := OnceCloser(body)

	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())
	assert.Equal(t, 1, body.closes)
}

func TestGuardReportsSingleError(t *testing.T) {
	rec := &recorder{}
	h := Guard(context.Background(), rec.handlers())

	h.OnError(429)
	h.OnError(500)
	h.OnMarkdown(MarkdownUpdate{Text: "late"})

	assert.Equal(t, []int{429}, rec.errors)
	assert.Empty(t, rec.markdown)
}

func TestGuardSilentAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	h := Guard(ctx, rec.handlers())
	cancel()

	h.OnSources(nil)
	h.OnMarkdown(MarkdownUpdate{Text: "x"})
	h.OnRelates(nil)
	h.OnError(500)

	assert.Empty(t, rec.events)
}
