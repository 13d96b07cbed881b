// Package tokenizer turns free text into sets of weighted tokens. Three
// strategies share one normalization step: whole words (precision), word
// prefixes (recall) and character n-grams (typo tolerance).
package tokenizer

import (
	"fmt"
	"sort"
)

const (
	DefaultWordWeight      = 20
	DefaultPrefixWeight    = 5
	DefaultPrefixMinLength = 4
	DefaultNGramWeight     = 1
	DefaultNGramSize       = 3
)

// Token is a normalized value together with the weight of the tokenizer
// that produced it.
type Token struct {
	Value  string
	Weight int
}

// Tokenizer produces a deterministic token set from text.
type Tokenizer interface {
	Name() string
	Weight() int
	// Tokenize normalizes text and returns its distinct tokens sorted by value.
	Tokenize(text string) []Token
	// TokenizeWords is Tokenize over words that are already normalized.
	TokenizeWords(words []string) []Token
}

// WordTokenizer emits each distinct normalized word.
type WordTokenizer struct {
	weight int
}

func NewWordTokenizer(weight int) *WordTokenizer {
	return &WordTokenizer{weight: weight}
}

func (t *WordTokenizer) Name() string { return "word" }
func (t *WordTokenizer) Weight() int  { return t.weight }

func (t *WordTokenizer) Tokenize(text string) []Token {
	return t.TokenizeWords(Words(text))
}

func (t *WordTokenizer) TokenizeWords(words []string) []Token {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return toTokens(set, t.weight)
}

// PrefixTokenizer emits every prefix of length minLength..len(word) for
// words at least minLength long.
type PrefixTokenizer struct {
	weight    int
	minLength int
}

func NewPrefixTokenizer(weight, minLength int) *PrefixTokenizer {
	return &PrefixTokenizer{weight: weight, minLength: minLength}
}

func (t *PrefixTokenizer) Name() string { return "prefix" }
func (t *PrefixTokenizer) Weight() int  { return t.weight }

func (t *PrefixTokenizer) Tokenize(text string) []Token {
	return t.TokenizeWords(Words(text))
}

func (t *PrefixTokenizer) TokenizeWords(words []string) []Token {
	set := make(map[string]struct{})
	for _, w := range words {
		if len(w) < t.minLength {
			continue
		}
		for i := t.minLength; i <= len(w); i++ {
			set[w[:i]] = struct{}{}
		}
	}
	return toTokens(set, t.weight)
}

// NGramTokenizer emits every contiguous substring of length n of words at
// least n long.
type NGramTokenizer struct {
	weight int
	n      int
}

func NewNGramTokenizer(weight, n int) *NGramTokenizer {
	return &NGramTokenizer{weight: weight, n: n}
}

func (t *NGramTokenizer) Name() string { return "ngram" }
func (t *NGramTokenizer) Weight() int  { return t.weight }

func (t *NGramTokenizer) Tokenize(text string) []Token {
	return t.TokenizeWords(Words(text))
}

func (t *NGramTokenizer) TokenizeWords(words []string) []Token {
	set := make(map[string]struct{})
	for _, w := range words {
		for i := 0; i+t.n <= len(w); i++ {
			set[w[i:i+t.n]] = struct{}{}
		}
	}
	return toTokens(set, t.weight)
}

func toTokens(set map[string]struct{}, weight int) []Token {
	tokens := make([]Token, 0, len(set))
	for v := range set {
		tokens = append(tokens, Token{Value: v, Weight: weight})
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Value < tokens[j].Value
	})
	return tokens
}

// Config holds the tunable constants of the three strategies.
type Config struct {
	WordWeight      int
	PrefixWeight    int
	PrefixMinLength int
	NGramWeight     int
	NGramSize       int
}

// DefaultConfig returns the standard weights: word 20, prefix 5 (min 4),
// n-gram 1 (n = 3).
func DefaultConfig() Config {
	return Config{
		WordWeight:      DefaultWordWeight,
		PrefixWeight:    DefaultPrefixWeight,
		PrefixMinLength: DefaultPrefixMinLength,
		NGramWeight:     DefaultNGramWeight,
		NGramSize:       DefaultNGramSize,
	}
}

func (c Config) Validate() error {
	if c.WordWeight <= 0 || c.PrefixWeight <= 0 || c.NGramWeight <= 0 {
		return fmt.Errorf("tokenizer weights must be positive: %+v", c)
	}
	if c.PrefixMinLength < minWordLength {
		return fmt.Errorf("prefix min length must be at least %d, got %d", minWordLength, c.PrefixMinLength)
	}
	if c.NGramSize < 1 {
		return fmt.Errorf("n-gram size must be at least 1, got %d", c.NGramSize)
	}
	return nil
}
