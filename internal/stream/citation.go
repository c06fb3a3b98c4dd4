package stream

import (
	"github.com/dlclark/regexp2"
)

type rewrite struct {
	re   *regexp2.Regexp
	repl string
}

func mustRewrite(pattern, repl string) rewrite {
	return rewrite{re: regexp2.MustCompile(pattern, regexp2.ECMAScript), repl: repl}
}

// The rendering layer depends on the exact output of these rewrites; their
// order matters. Step three needs a negative lookahead, hence regexp2.
var citationRewrites = []rewrite{
	mustRewrite(`\[\[([cC])itation`, "[citation"),
	mustRewrite(`[cC]itation:(\d+)]]`, "citation:$1]"),
	mustRewrite(`\[\[([cC]itation:\d+)]](?!])`, "[$1]"),
	mustRewrite(`\[[cC]itation:(\d+)]`, "[citation]($1)"),
}

var fullWidthRewrite = mustRewrite(`【[cC]itation:(\d+)】`, "[citation:$1]")

// NormalizeCitations rewrites backend citation markers such as [[citation:3]]
// into markdown links of the form [citation](3). It is idempotent.
func NormalizeCitations(s string) string {
	for _, r := range citationRewrites {
		s = r.apply(s)
	}
	return s
}

// NormalizeCitationsFullWidth also accepts the 【citation:N】 form some
// backends emit.
func NormalizeCitationsFullWidth(s string) string {
	return NormalizeCitations(fullWidthRewrite.apply(s))
}

func (r rewrite) apply(s string) string {
	// Replace only fails on a match timeout, and none is configured.
	out, err := r.re.Replace(s, r.repl, -1, -1)
	if err != nil {
		return s
	}
	return out
}
