package proximity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DedupKey builds a dedup key from free-text parts. Each part is NFKC
// normalized, case folded and whitespace collapsed, so "Main  St" and
// "MAIN ST" produce the same key. Parts are joined with "|".
func DedupKey(parts ...string) string {
	folder := cases.Fold()
	out := make([]string, len(parts))
	for i, p := range parts {
		p = norm.NFKC.String(p)
		p = folder.String(p)
		out[i] = strings.Join(strings.Fields(p), " ")
	}
	return strings.Join(out, "|")
}
