package relay

import (
	"strings"
	"unicode"
)

// CommandMatcher detects voice stop commands in finalized transcripts.
type CommandMatcher struct {
	words map[string]struct{}
}

// NewCommandMatcher creates a matcher for the given stop words. Words are
// compared case-insensitively.
func NewCommandMatcher(words []string) *CommandMatcher {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return &CommandMatcher{words: set}
}

// Match reports whether the transcript contains a stop word as a whole word.
// "exit" matches in "please exit now" but not in "exiting".
func (m *CommandMatcher) Match(transcript string) bool {
	if len(m.words) == 0 {
		return false
	}

	fields := strings.FieldsFunc(strings.ToLower(transcript), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if _, ok := m.words[f]; ok {
			return true
		}
	}
	return false
}
