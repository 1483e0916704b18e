// Package corpus reads the bilingual corpus: it finds source (.bible) and
// target (.codex) files, and extracts the verse cells they contain keyed by
// vref ("GEN 1:1").
package corpus

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// vrefPattern matches a book code followed by chapter:verse. Book codes are
// upper case and may start with a digit (1JN).
var vrefPattern = regexp.MustCompile(`\b([A-Z0-9]*[A-Z][A-Z0-9]*)\s+(\d+):(\d+)\b`)

// VRef is a parsed verse reference.
type VRef struct {
	Book    string
	Chapter int
	Verse   int
}

// String formats the reference canonically, e.g. "GEN 1:1".
func (v VRef) String() string {
	return fmt.Sprintf("%s %d:%d", v.Book, v.Chapter, v.Verse)
}

// ParseVRef parses a complete verse reference. Surrounding whitespace is
// ignored; anything else around the reference is an error.
func ParseVRef(s string) (VRef, error) {
	s = strings.TrimSpace(s)
	m := vrefPattern.FindStringSubmatchIndex(s)
	if m == nil || m[0] != 0 || m[1] != len(s) {
		return VRef{}, fmt.Errorf("invalid vref %q", s)
	}
	chapter, err := strconv.Atoi(s[m[4]:m[5]])
	if err != nil {
		return VRef{}, fmt.Errorf("invalid chapter in vref %q: %w", s, err)
	}
	verse, err := strconv.Atoi(s[m[6]:m[7]])
	if err != nil {
		return VRef{}, fmt.Errorf("invalid verse in vref %q: %w", s, err)
	}
	return VRef{Book: s[m[2]:m[3]], Chapter: chapter, Verse: verse}, nil
}

// refSpan is a reference found in running text with the text that follows it
// up to the next reference.
type refSpan struct {
	ref    VRef
	text   string
	offset int
}

// splitRefs cuts text at every verse reference. Text before the first
// reference is dropped.
func splitRefs(text string) []refSpan {
	matches := vrefPattern.FindAllStringSubmatchIndex(text, -1)
	spans := make([]refSpan, 0, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		ref, err := ParseVRef(text[m[0]:m[1]])
		if err != nil {
			continue
		}
		spans = append(spans, refSpan{
			ref:    ref,
			text:   strings.TrimSpace(text[m[1]:end]),
			offset: m[0],
		})
	}
	return spans
}
