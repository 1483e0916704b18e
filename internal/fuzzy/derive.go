package fuzzy

// Derived holds the search representations computed from a document's content.
type Derived struct {
	Normalized   string
	PhoneticCode string
	NGrams       string
	WordCount    int
	CharCount    int
}

// Derive computes every stored representation of content. Normalization is
// always case-insensitive; case-sensitive lookups compare raw content.
func Derive(content string, ngramSize int) Derived {
	if ngramSize <= 0 {
		ngramSize = DefaultNGramSize
	}
	normalized := Normalize(content, false)
	return Derived{
		Normalized:   normalized,
		PhoneticCode: PhoneticKey(normalized),
		NGrams:       IndexNGrams(normalized, ngramSize),
		WordCount:    WordCount(content),
		CharCount:    CharCount(content),
	}
}
