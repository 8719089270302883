package storage

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	tagRe    = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]*>`)
	entityRe = regexp.MustCompile(`&[a-zA-Z#0-9]+;`)
)

// IndexWords extracts the full-text word set from plain text: tokens split
// on anything that is not a letter or hyphen, longer than two characters,
// uppercased and deduplicated. Order follows first occurrence.
func IndexWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})

	seen := make(map[string]struct{}, len(fields))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 2 {
			continue
		}
		w := strings.ToUpper(f)
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}

	return words
}

// IndexHTML extracts the full-text word set from HTML markup by removing
// tags, scripts and styles before tokenizing.
func IndexHTML(html string) []string {
	text := tagRe.ReplaceAllString(html, " ")
	text = entityRe.ReplaceAllString(text, " ")
	return IndexWords(text)
}
