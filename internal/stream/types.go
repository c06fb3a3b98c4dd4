package stream

import "encoding/json"

// Segment boundary markers emitted by the answer service. They never occur in
// the service's JSON output and are matched exactly.
const (
	SentinelSources = "__LLM_RESPONSE__"
	SentinelRelated = "__RELATED_QUESTIONS__"
)

// PlaceholderQuestion prefixes the filler entry the backend emits when it has
// no real follow-up question. Such entries are never forwarded.
const PlaceholderQuestion = "提出的问题："

// Source is one retrieved document as sent by the backend. Its shape is backend
// defined, so it is kept as raw JSON.
type Source = json.RawMessage

// RelatedQuestion is a suggested follow-up question.
type RelatedQuestion struct {
	Question string `json:"question"`
}

// MarkdownUpdate carries one change to the running answer.
//
// An incremental update (Cumulative == false) is appended to the previous
// answer. A cumulative update replaces it with the full normalized answer.
type MarkdownUpdate struct {
	Text       string
	Cumulative bool
}

// Apply returns the answer after this update.
func (u MarkdownUpdate) Apply(prev string) string {
	if u.Cumulative {
		return u.Text
	}
	return prev + u.Text
}

// Handlers are the consumer callbacks of a search session. Any of them may be
// nil; OnError receives an HTTP-style status code.
type Handlers struct {
	OnSources  func([]Source)
	OnMarkdown func(MarkdownUpdate)
	OnRelates  func([]RelatedQuestion)
	OnError    func(status int)
}

func (h Handlers) sources(s []Source) {
	if h.OnSources != nil {
		h.OnSources(s)
	}
}

func (h Handlers) markdown(u MarkdownUpdate) {
	if h.OnMarkdown != nil {
		h.OnMarkdown(u)
	}
}

func (h Handlers) relates(r []RelatedQuestion) {
	if h.OnRelates != nil {
		h.OnRelates(r)
	}
}

func (h Handlers) fail(status int) {
	if h.OnError != nil {
		h.OnError(status)
	}
}
