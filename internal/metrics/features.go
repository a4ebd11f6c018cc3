package metrics

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Features summarises a step payload without keeping any of its text.
type Features struct {
	Bytes int
	Runes int
	Lines int
	// Files counts file records in a ReadFile result, or "- path" entries
	// in a repository listing.
	Files          int
	FileErrors     int
	TruncatedFiles int
}

// CountFeatures derives size and file-record counts from a step payload.
func CountFeatures(s string) Features {
	f := Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Lines: countLines(s),
	}
	if strings.HasPrefix(strings.TrimSpace(s), "[") && gjson.Valid(s) {
		gjson.Parse(s).ForEach(func(_, rec gjson.Result) bool {
			if !rec.Get("path").Exists() {
				return true
			}
			f.Files++
			if rec.Get("error").String() != "" {
				f.FileErrors++
			}
			if rec.Get("truncated").Bool() {
				f.TruncatedFiles++
			}
			return true
		})
		return f
	}
	f.Files = countListed(s)
	return f
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}

func countListed(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if p, ok := strings.CutPrefix(strings.TrimSpace(line), "- "); ok && strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}
