package tokenizer

import (
	"reflect"
	"strings"
	"testing"
)

func values(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Value
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Café Society!", "cafe society"},
		{"  Hello,   WORLD  ", "hello world"},
		{"rock'n'roll", "rock n roll"},
		{"Straße Øresund", "strasse oresund"},
		{"naïve coöperation", "naive cooperation"},
		{"!!!", ""},
		{"", ""},
		{"Q3 2024: +12%", "q3 2024 12"},
		{"Москва новости", "moskva novosti"},
		{"Αθήνα", "athena"},
		{"北京 新闻", "bei jing xin wen"},
		{"ﬁnance", "finance"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWordsDropsShortWords(t *testing.T) {
	got := Words("a I go to x-ray")
	want := []string{"go", "to", "ray"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
	if words := Words("   ...  "); len(words) != 0 {
		t.Errorf("expected no words, got %v", words)
	}
}

func TestNonLatinTextIsSearchable(t *testing.T) {
	got := Words("Москва: новости спорта")
	want := []string{"moskva", "novosti", "sporta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
}

func TestLongWordsAreCut(t *testing.T) {
	long := strings.Repeat("ab", 40000)
	words := Words("short " + long)
	if len(words) != 2 || words[0] != "short" || words[1] != long[:MaxWordLength] {
		t.Fatalf("expected the long word cut to %d bytes, got %d words", MaxWordLength, len(words))
	}

	family, err := NewFamily(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	tokens := family.Tokenize(long)
	var total int
	for _, tok := range tokens {
		if len(tok.Value) > MaxWordLength {
			t.Fatalf("token of length %d exceeds the word cap", len(tok.Value))
		}
		total += len(tok.Value)
	}
	// one word, 61 prefixes and 62 trigrams before dedupe
	if len(tokens) > 1+61+62 {
		t.Errorf("expected at most %d tokens, got %d", 1+61+62, len(tokens))
	}
	if total > 64*64 {
		t.Errorf("token bytes %d not bounded by the word cap", total)
	}
}

func TestWordTokenizer(t *testing.T) {
	tok := NewWordTokenizer(DefaultWordWeight)
	got := tok.Tokenize("Café Society! society")
	want := []Token{{"cafe", 20}, {"society", 20}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestPrefixTokenizer(t *testing.T) {
	tok := NewPrefixTokenizer(DefaultPrefixWeight, DefaultPrefixMinLength)
	got := values(tok.Tokenize("database"))
	want := []string{"data", "datab", "databa", "databas", "database"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize(database) = %v, want %v", got, want)
	}
	if got := tok.Tokenize("cat"); len(got) != 0 {
		t.Errorf("expected no prefixes for short word, got %v", got)
	}
	for _, tk := range tok.Tokenize("data") {
		if tk.Weight != 5 {
			t.Errorf("expected weight 5, got %d", tk.Weight)
		}
	}
}

func TestNGramTokenizer(t *testing.T) {
	tok := NewNGramTokenizer(DefaultNGramWeight, DefaultNGramSize)
	tests := []struct {
		input string
		want  []string
	}{
		{"cats", []string{"ats", "cat"}},
		{"cat", []string{"cat"}},
		{"ab", []string{}},
		{"banana", []string{"ana", "ban", "nan"}},
	}
	for _, tt := range tests {
		got := values(tok.Tokenize(tt.input))
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTokenizersAreDeterministic(t *testing.T) {
	text := "Stock markets rally on positive earnings reports from tech sector."
	family, err := NewFamily(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, tok := range family.Tokenizers() {
		first := tok.Tokenize(text)
		second := tok.Tokenize(text)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s tokenizer not deterministic", tok.Name())
		}
	}
	if !reflect.DeepEqual(family.Tokenize(text), family.Tokenize(text)) {
		t.Error("family not deterministic")
	}
}

func TestFamilyDedupeKeepsHighestWeight(t *testing.T) {
	family, err := NewFamily(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	// "data" is a word (20), a prefix of "database" (5); "cat" a word and an n-gram.
	tokens := family.Tokenize("data database cat")
	byValue := make(map[string]int)
	for _, tk := range tokens {
		if _, dup := byValue[tk.Value]; dup {
			t.Fatalf("duplicate token %q", tk.Value)
		}
		byValue[tk.Value] = tk.Weight
	}
	checks := map[string]int{
		"data":     20,
		"database": 20,
		"datab":    5,
		"cat":      20,
		"dat":      1,
		"ata":      1,
	}
	for v, w := range checks {
		if byValue[v] != w {
			t.Errorf("weight of %q = %d, want %d", v, byValue[v], w)
		}
	}
}

func TestFamilyEqualWeightsKeepFirst(t *testing.T) {
	family := NewFamilyOf(NewWordTokenizer(3), NewNGramTokenizer(3, 3))
	tokens := family.Tokenize("cat")
	if len(tokens) != 1 || tokens[0] != (Token{"cat", 3}) {
		t.Errorf("expected single cat token, got %v", tokens)
	}
}

func TestFamilyEmptyText(t *testing.T) {
	family, err := NewFamily(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got := family.Tokenize("?! -"); len(got) != 0 {
		t.Errorf("expected no tokens, got %v", got)
	}
	if got := family.Values(""); len(got) != 0 {
		t.Errorf("expected no values, got %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.PrefixMinLength = 1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for prefix min length 1")
	}
	bad = DefaultConfig()
	bad.WordWeight = 0
	if _, err := NewFamily(bad); err == nil {
		t.Error("expected error for zero weight")
	}
}

func BenchmarkFamilyTokenize(b *testing.B) {
	family, err := NewFamily(DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	text := `Distributed search engines process queries across multiple shards to achieve
        horizontal scalability. Each shard maintains its own inverted index and responds
        to queries independently.`
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = family.Tokenize(text)
	}
}
