package stream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

const readSize = 4096

// finisher is implemented by consumers that can tell when the rest of the
// stream no longer matters.
type finisher interface {
	Done() bool
}

// Pump reads body in chunks and hands each chunk to w until end of stream,
// cancellation, or until w reports it is done. The body is closed before Pump
// returns. A nil error means the stream ended normally; cancellation returns
// the context's error.
//
// The next chunk is only read after w has consumed the previous one.
func Pump(ctx context.Context, body io.ReadCloser, w io.Writer) error {
	defer func() { _ = body.Close() }()

	done := ctx.Done()
	buf := make([]byte, readSize)
	for {
		select {
		case <-done:
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return errors.Wrap(werr, "consume chunk")
			}
			if f, ok := w.(finisher); ok && f.Done() {
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return errors.Wrap(err, "read response stream")
		}
	}
}

// OnceCloser makes Close safe to call any number of times; only the first call
// reaches the wrapped closer.
func OnceCloser(rc io.ReadCloser) io.ReadCloser {
	return &onceCloser{ReadCloser: rc}
}

type onceCloser struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.ReadCloser.Close() })
	return c.err
}

// Guard wraps h so that no callback fires once ctx is done or an error has
// been reported, and so that at most one error is reported per session.
func Guard(ctx context.Context, h Handlers) Handlers {
	var failed atomic.Bool
	live := func() bool {
		return ctx.Err() == nil && !failed.Load()
	}
	return Handlers{
		OnSources: func(s []Source) {
			if live() {
				h.sources(s)
			}
		},
		OnMarkdown: func(u MarkdownUpdate) {
			if live() {
				h.markdown(u)
			}
		},
		OnRelates: func(r []RelatedQuestion) {
			if live() {
				h.relates(r)
			}
		},
		OnError: func(status int) {
			if ctx.Err() == nil && failed.CompareAndSwap(false, true) {
				h.fail(status)
			}
		},
	}
}
