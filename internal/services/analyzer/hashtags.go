package analyzer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"postflow/internal/platform"
)

// HashtagFor turns a keyword or phrase into a CamelCase hashtag body, dropping
// characters hashtags cannot carry.
func HashtagFor(phrase string) string {
	fields := strings.FieldsFunc(phrase, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	caser := cases.Title(language.English)
	var b strings.Builder
	for _, field := range fields {
		b.WriteString(caser.String(strings.ToLower(field)))
	}
	return b.String()
}

func suggestHashtags(keywords []string, limit int) []string {
	tags := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if tag := HashtagFor(keyword); tag != "" {
			tags = append(tags, tag)
		}
	}
	tags = platform.DistinctHashtags(tags)
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	return tags
}
