package stream

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
)

// answerRecord is one newline-delimited JSON record of the answer segment.
type answerRecord struct {
	Content *string `json:"content"`
}

// normalizer is applied to JSON record content, never to raw lines.
type normalizer func(string) string

// decodeRecord turns one answer record into markdown text. terminated reports
// whether the record ended with a newline; raw records get it back.
//
// JSON objects contribute their content field (normalized), objects without one
// contribute nothing, everything else passes through verbatim.
func decodeRecord(line []byte, terminated bool, normalize normalizer) (string, bool) {
	if isJSONObject(line) {
		var rec answerRecord
		if err := jsoniter.Unmarshal(line, &rec); err == nil {
			if rec.Content == nil {
				return "", false
			}
			return normalize(*rec.Content), true
		}
	}

	if terminated {
		return string(line) + "\n", true
	}
	if len(line) == 0 {
		return "", false
	}
	return string(line), true
}

func isJSONObject(line []byte) bool {
	trimmed := bytes.TrimSpace(line)
	return len(trimmed) > 1 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}'
}

// decodeRecords splits b on newlines and decodes every record. When flush is
// false the trailing unterminated record is left undecoded and its offset is
// returned so the caller can hold it back.
func decodeRecords(b []byte, flush bool, normalize normalizer, emit func(string)) int {
	start := 0
	for {
		i := bytes.IndexByte(b[start:], '\n')
		if i < 0 {
			break
		}
		if text, ok := decodeRecord(b[start:start+i], true, normalize); ok && text != "" {
			emit(text)
		}
		start += i + 1
	}
	if !flush {
		return start
	}
	if text, ok := decodeRecord(b[start:], false, normalize); ok && text != "" {
		emit(text)
	}
	return len(b)
}
