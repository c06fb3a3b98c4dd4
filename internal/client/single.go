package client

import (
	"context"

	"github.com/markis/ragsearch/internal/stream"
)

// StreamClient talks to the single-stream /query endpoint, where sources,
// answer and related questions share one sentinel-delimited body. Answer text
// is reported as incremental MarkdownUpdates.
type StreamClient struct {
	session
}

type queryPayload struct {
	Query                    string `json:"query"`
	SearchUUID               string `json:"search_uuid"`
	GenerateRelatedQuestions bool   `json:"generate_related_questions"`
}

func (c *StreamClient) Search(ctx context.Context, q Query, h stream.Handlers) {
	h, l := c.start(ctx, &q, h)
	defer c.recoverPanic(ctx, l, h)

	resp, err := c.post(ctx, "/query", queryPayload{
		Query:                    q.Text,
		SearchUUID:               q.SearchUUID,
		GenerateRelatedQuestions: q.Related,
	}, "text/event-stream")
	if err != nil {
		c.report(ctx, l, h, err)
		return
	}
	body := stream.OnceCloser(resp.Body)
	defer func() { _ = body.Close() }()

	d := stream.NewDemuxer(h, c.streamOpts...)
	if err := stream.Pump(ctx, body, d); err != nil {
		c.report(ctx, l, h, err)
		return
	}
	_ = d.Close()
	l.Debug().Msg("search finished")
}
