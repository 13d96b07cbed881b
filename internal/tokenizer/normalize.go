package tokenizer

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// minWordLength is the shortest word any tokenizer will consider.
	minWordLength = 2
	// MaxWordLength bounds a normalized word. Longer runs are cut, which
	// keeps the prefix and n-gram expansion of one word linear in the text
	// and every token well inside a database index key.
	MaxWordLength = 64
)

var foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Transliterate spells text in plain ASCII. Accents are stripped
// ("Café" -> "Cafe"), compatibility forms decomposed, and other scripts
// romanized ("Москва" -> "Moskva", "北京" -> "Bei Jing ").
func Transliterate(text string) string {
	folded, _, err := transform.String(foldMarks, text)
	if err != nil {
		folded = text
	}
	return unidecode.Unidecode(folded)
}

// Normalize transliterates and lower-cases text, replaces every character
// outside [a-z0-9] with a space and collapses whitespace runs.
func Normalize(text string) string {
	lowered := strings.ToLower(Transliterate(text))
	var b strings.Builder
	b.Grow(len(lowered))
	pendingSpace := false
	for i := 0; i < len(lowered); i++ {
		c := lowered[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteByte(c)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Words returns the normalized words of text, dropping words shorter than
// two characters and cutting words to MaxWordLength. Order and duplicates
// are preserved.
func Words(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	fields := strings.Split(normalized, " ")
	words := fields[:0]
	for _, w := range fields {
		if len(w) < minWordLength {
			continue
		}
		if len(w) > MaxWordLength {
			w = w[:MaxWordLength]
		}
		words = append(words, w)
	}
	return words
}
