package tokenizer

import "sort"

// Family runs several tokenizers over the same text and merges their output
// into one token set. Indexing and search must use identically configured
// families.
type Family struct {
	tokenizers []Tokenizer
}

// NewFamily builds the word, prefix and n-gram family from cfg, in that
// priority order.
func NewFamily(cfg Config) (*Family, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewFamilyOf(
		NewWordTokenizer(cfg.WordWeight),
		NewPrefixTokenizer(cfg.PrefixWeight, cfg.PrefixMinLength),
		NewNGramTokenizer(cfg.NGramWeight, cfg.NGramSize),
	), nil
}

// NewFamilyOf composes an arbitrary ordered list of tokenizers.
func NewFamilyOf(tokenizers ...Tokenizer) *Family {
	return &Family{tokenizers: tokenizers}
}

// Tokenizers returns the configured strategies in priority order.
func (f *Family) Tokenizers() []Tokenizer {
	out := make([]Tokenizer, len(f.tokenizers))
	copy(out, f.tokenizers)
	return out
}

// Tokenize returns the union of all tokenizers' output, deduplicated by
// value and sorted by value. When several tokenizers emit the same value the
// highest weight wins; equal weights keep the earlier tokenizer's token.
func (f *Family) Tokenize(text string) []Token {
	words := Words(text)
	if len(words) == 0 {
		return nil
	}
	best := make(map[string]int)
	for _, t := range f.tokenizers {
		for _, tok := range t.TokenizeWords(words) {
			if w, ok := best[tok.Value]; !ok || tok.Weight > w {
				best[tok.Value] = tok.Weight
			}
		}
	}
	tokens := make([]Token, 0, len(best))
	for v, w := range best {
		tokens = append(tokens, Token{Value: v, Weight: w})
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Value < tokens[j].Value
	})
	return tokens
}

// Values returns only the distinct token values of Tokenize.
func (f *Family) Values(text string) []string {
	tokens := f.Tokenize(text)
	values := make([]string, len(tokens))
	for i, tok := range tokens {
		values[i] = tok.Value
	}
	return values
}
