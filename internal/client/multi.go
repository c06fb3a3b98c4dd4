package client

import (
	"context"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/markis/ragsearch/internal/stream"
)

// MultiClient talks to the three-call variant of the service: /search for
// sources, a streamed /generate for the answer and /related for follow-up
// questions. Answer text is reported as cumulative MarkdownUpdates, each
// holding the whole normalized answer so far.
type MultiClient struct {
	session
}

type searchPayload struct {
	Query string `json:"query"`
}

type contextPayload struct {
	Query    string          `json:"query"`
	Contexts []stream.Source `json:"contexts"`
}

// maxJSONBody caps the non-streamed responses.
const maxJSONBody = 8 << 20

func (c *MultiClient) Search(ctx context.Context, q Query, h stream.Handlers) {
	h, l := c.start(ctx, &q, h)
	defer c.recoverPanic(ctx, l, h)

	sources, err := c.fetchSources(ctx, q.Text)
	if err != nil {
		c.report(ctx, l, h, err)
		return
	}
	h.OnSources(sources)

	if err := c.generate(ctx, q.Text, sources, h); err != nil {
		c.report(ctx, l, h, err)
		return
	}

	if !q.Related {
		l.Debug().Msg("search finished")
		return
	}
	related, err := c.fetchRelated(ctx, q.Text, sources)
	if err != nil {
		c.report(ctx, l, h, err)
		return
	}
	h.OnRelates(related)
	l.Debug().Msg("search finished")
}

func (c *MultiClient) fetchSources(ctx context.Context, query string) ([]stream.Source, error) {
	data, err := c.postJSON(ctx, "/search", searchPayload{Query: query})
	if err != nil {
		return nil, err
	}
	sources, err := stream.ParseSources(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode /search response")
	}
	return sources, nil
}

func (c *MultiClient) generate(ctx context.Context, query string, sources []stream.Source, h stream.Handlers) error {
	resp, err := c.post(ctx, "/generate", contextPayload{Query: query, Contexts: sources}, "text/event-stream")
	if err != nil {
		return err
	}
	body := stream.OnceCloser(resp.Body)
	defer func() { _ = body.Close() }()

	answer := stream.NewCumulative(h.OnMarkdown, c.streamOpts...)
	if err := stream.Pump(ctx, body, answer); err != nil {
		return err
	}
	return answer.Close()
}

func (c *MultiClient) fetchRelated(ctx context.Context, query string, sources []stream.Source) ([]stream.RelatedQuestion, error) {
	data, err := c.postJSON(ctx, "/related", contextPayload{Query: query, Contexts: sources})
	if err != nil {
		return nil, err
	}
	var questions []string
	if err := jsoniter.Unmarshal(data, &questions); err != nil {
		return nil, errors.Wrap(err, "failed to decode /related response")
	}
	return stream.FilterQuestions(questions), nil
}

// postJSON sends payload and returns the complete response body.
func (c *MultiClient) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	resp, err := c.post(ctx, path, payload, "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s response", path)
	}
	return data, nil
}
