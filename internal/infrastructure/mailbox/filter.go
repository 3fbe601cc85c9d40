package mailbox

import "strings"

// KeywordFilter pre-selects messages by subject and sender.
// An empty filter accepts everything.
type KeywordFilter []string

// NewKeywordFilter drops blank keywords
func NewKeywordFilter(keywords []string) KeywordFilter {
	var f KeywordFilter
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			f = append(f, k)
		}
	}
	return f
}

// Match reports whether any keyword occurs in any field, ignoring case
func (f KeywordFilter) Match(fields ...string) bool {
	if len(f) == 0 {
		return true
	}
	for _, field := range fields {
		field = strings.ToLower(field)
		for _, k := range f {
			if strings.Contains(field, k) {
				return true
			}
		}
	}
	return false
}
