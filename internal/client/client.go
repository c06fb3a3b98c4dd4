package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/markis/ragsearch/internal/config"
	"github.com/markis/ragsearch/internal/stream"
)

// Query is one search request.
type Query struct {
	Text string
	// SearchUUID correlates the request with server logs. A random one is
	// used when empty.
	SearchUUID string
	// Related asks the service for follow-up questions.
	Related bool
}

// Searcher runs one search session and reports everything through h.
//
// Search returns once the session is complete, failed or cancelled through
// ctx. Failures are reported through h.OnError with an HTTP-style status and
// are never returned; cancellation is silent. No callback fires after Search
// returns.
type Searcher interface {
	Search(ctx context.Context, q Query, h stream.Handlers)
}

// Option configures a Searcher built by New.
type Option func(*session)

// WithHTTPClient replaces the shared pooled HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(s *session) { s.http = c }
}

// WithLogger sets the logger used for failures and diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *session) { s.log = l }
}

// New builds the Searcher for the protocol variant selected by cfg.Mode.
func New(cfg *config.Config, opts ...Option) (Searcher, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "invalid endpoint")
	}

	s := session{
		transport: transport{
			endpoint: endpoint,
			apiKey:   cfg.APIKey,
		},
		log: log.Logger,
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.streamOpts = []stream.Option{stream.WithLogger(s.log)}
	if cfg.FullWidthCitations {
		s.streamOpts = append(s.streamOpts, stream.WithFullWidthCitations())
	}

	switch cfg.Mode {
	case config.ModeStream, "":
		return &StreamClient{session: s}, nil
	case config.ModeMulti:
		return &MultiClient{session: s}, nil
	default:
		return nil, errors.Errorf("unknown mode %q", cfg.Mode)
	}
}

// session is the plumbing shared by both protocol variants.
type session struct {
	transport
	log        zerolog.Logger
	streamOpts []stream.Option
}

func (s *session) start(ctx context.Context, q *Query, h stream.Handlers) (stream.Handlers, zerolog.Logger) {
	if q.SearchUUID == "" {
		q.SearchUUID = uuid.NewString()
	}
	l := s.log.With().Str("search_uuid", q.SearchUUID).Logger()
	l.Debug().Str("query", q.Text).Bool("related", q.Related).Msg("starting search")
	return stream.Guard(ctx, h), l
}

// report turns a failure into at most one error callback.
func (s *session) report(ctx context.Context, l zerolog.Logger, h stream.Handlers, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		l.Debug().Err(err).Msg("search cancelled")
		return
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		l.Warn().Int("status", statusErr.Code).Str("body", statusErr.Body).Msg("answer service rejected request")
		h.OnError(statusErr.Code)
		return
	}

	l.Error().Err(err).Msg("search failed")
	h.OnError(http.StatusInternalServerError)
}

// recoverPanic reports a panic raised while processing the session, typically
// from a consumer callback, as a generic failure.
func (s *session) recoverPanic(ctx context.Context, l zerolog.Logger, h stream.Handlers) {
	if r := recover(); r != nil {
		s.report(ctx, l, h, errors.Errorf("panic during search: %v", r))
	}
}
