// Package backendtest serves a fake answer service speaking both protocol
// variants, for tests.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/markis/ragsearch/internal/stream"
)

// Fixture describes what the fake service answers.
type Fixture struct {
	// Sources is the raw JSON source block.
	Sources string
	// Answer is streamed in order, one flush per element.
	Answer []string
	// Related is the raw related-question list. Empty means none is sent.
	Related string
	// ChunkSize re-chunks every streamed body into pieces of this many bytes.
	ChunkSize int
	// Status overrides the response status per route path.
	Status map[string]int
	// Block, when set, stalls streaming after the first chunk until it is
	// closed or the client goes away.
	Block chan struct{}
}

// Request is a recorded call to the fake service.
type Request struct {
	Path string
	Body map[string]any
}

type Server struct {
	*httptest.Server
	fixture Fixture

	mu       sync.Mutex
	requests []Request
}

func NewServer(f Fixture) *Server {
	s := &Server{fixture: f}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.status)
	r.Post("/query", s.handleQuery)
	r.Post("/search", s.handleSearch)
	r.Post("/generate", s.handleGenerate)
	r.Post("/related", s.handleRelated)

	s.Server = httptest.NewServer(r)
	return s
}

// Requests returns the calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// SingleStreamBody is the body /query sends for the fixture.
func (f Fixture) SingleStreamBody(related bool) string {
	var b strings.Builder
	b.WriteString(f.Sources)
	b.WriteString("\n\n" + stream.SentinelSources + "\n\n")
	for _, a := range f.Answer {
		b.WriteString(a)
	}
	if related && f.Related != "" {
		b.WriteString("\n\n" + stream.SentinelRelated + "\n\n")
		b.WriteString(f.Related)
	}
	return b.String()
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		_ = jsoniter.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.requests = append(s.requests, Request{Path: r.URL.Path, Body: body})
		s.mu.Unlock()

		r = r.WithContext(withBody(r.Context(), body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) status(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code, ok := s.fixture.Status[r.URL.Path]; ok {
			http.Error(w, http.StatusText(code), code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	related, _ := bodyFrom(r.Context())["generate_related_questions"].(bool)
	s.streamPieces(w, r, []string{s.fixture.SingleStreamBody(related)})
}

func (s *Server) handleSearch(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.fixture.Sources))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.streamPieces(w, r, s.fixture.Answer)
}

func (s *Server) handleRelated(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	related := s.fixture.Related
	if related == "" {
		related = "[]"
	}
	_, _ = w.Write([]byte(related))
}

func (s *Server) streamPieces(w http.ResponseWriter, r *http.Request, pieces []string) {
	if s.fixture.ChunkSize > 0 {
		pieces = rechunk(strings.Join(pieces, ""), s.fixture.ChunkSize)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for i, p := range pieces {
		if _, err := w.Write([]byte(p)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if i == 0 && s.fixture.Block != nil {
			select {
			case <-s.fixture.Block:
			case <-r.Context().Done():
				return
			}
		}
	}
}

func rechunk(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
