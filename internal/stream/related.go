package stream

import (
	"strings"
)

// parseRelatedList extracts questions from the trailing metadata of a stream.
// ok is false while the list has not visibly closed yet.
//
// The list is split on commas rather than decoded as JSON, which is what the
// backend's consumers have always done: a question containing a comma or a
// bracket comes out mangled. Keep it that way for compatibility.
func parseRelatedList(meta string) (questions []RelatedQuestion, ok bool) {
	meta = strings.TrimSpace(meta)
	if len(meta) < 2 || !strings.HasPrefix(meta, "[") || !strings.HasSuffix(meta, "]") {
		return nil, false
	}

	inner := meta[1 : len(meta)-1]
	questions = []RelatedQuestion{}
	for _, tok := range strings.Split(inner, ",") {
		tok = strings.TrimSpace(tok)
		tok = strings.TrimPrefix(tok, `"`)
		tok = strings.TrimSuffix(tok, `"`)
		if keepQuestion(tok) {
			questions = append(questions, RelatedQuestion{Question: tok})
		}
	}
	return questions, true
}

// FilterQuestions wraps plain question strings, dropping empty and
// placeholder entries.
func FilterQuestions(raw []string) []RelatedQuestion {
	questions := make([]RelatedQuestion, 0, len(raw))
	for _, q := range raw {
		q = strings.TrimSpace(q)
		if keepQuestion(q) {
			questions = append(questions, RelatedQuestion{Question: q})
		}
	}
	return questions
}

func keepQuestion(q string) bool {
	return q != "" && !strings.HasPrefix(q, PlaceholderQuestion)
}
