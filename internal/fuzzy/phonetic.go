package fuzzy

import "strings"

// soundexClass maps lowercase ASCII letters to their Soundex consonant class.
// '0' marks vowels, which separate repeated classes; h and w are absent and
// are skipped without separating.
var soundexClass = map[rune]byte{
	// labials
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	// gutturals and sibilants
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	// dentals
	'd': '3', 't': '3',
	'l': '4',
	// nasals
	'm': '5', 'n': '5',
	'r': '6',
	'a': '0', 'e': '0', 'i': '0', 'o': '0', 'u': '0', 'y': '0',
}

// Soundex returns the four character phonetic code of s. The first letter is
// kept, later letters are mapped to consonant classes, consecutive identical
// classes collapse, and the result is padded with zeros. Runes outside a-z are
// ignored; input without any such letter yields "".
func Soundex(s string) string {
	letters := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := make([]byte, 0, 4)
	code = append(code, byte(letters[0]-'a'+'A'))
	last := soundexClass[letters[0]]

	for _, r := range letters[1:] {
		if len(code) == 4 {
			break
		}
		class, ok := soundexClass[r]
		if !ok {
			// h, w
			continue
		}
		if class == '0' {
			last = '0'
			continue
		}
		if class != last {
			code = append(code, class)
		}
		last = class
	}

	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

// PhoneticKey returns the distinct Soundex codes of every token in text,
// space joined in first-seen order. This is the stored phonetic
// representation of a document.
func PhoneticKey(text string) string {
	return strings.Join(PhoneticCodes(text), " ")
}

// PhoneticCodes returns the distinct non-empty Soundex codes of the tokens of text.
func PhoneticCodes(text string) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, tok := range Tokenize(text) {
		c := Soundex(tok)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes
}
