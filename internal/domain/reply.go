package domain

import (
	"regexp"
	"strings"
)

var (
	numberedItemPattern = regexp.MustCompile(`\d+\.\s+[^.\n\d]+`)
	ordinalPrefix       = regexp.MustCompile(`^\d+\.\s+`)
)

// ParseReply returns the display content and suggestions of a raw assistant
// reply. The content is the raw text unchanged; suggestions come from
// ExtractSuggestions. Live replies and reloaded history share this path.
func ParseReply(raw string) (string, []string) {
	return raw, ExtractSuggestions(raw)
}

// ExtractSuggestions returns every numbered list item found in text, in order,
// each with its ordinal removed and surrounding whitespace trimmed. A nil slice
// means the text has no numbered items.
func ExtractSuggestions(text string) []string {
	matches := numberedItemPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(ordinalPrefix.ReplaceAllString(m, "")))
	}
	return out
}
