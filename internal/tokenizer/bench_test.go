package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

func BenchmarkFamilyTokenizeVaryingSize(b *testing.B) {
	family, err := NewFamily(DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	base := "central bank raises interest rates as markets rally "
	for _, size := range []int{10, 100, 1000, 5000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = family.Tokenize(text)
			}
		})
	}
}

func BenchmarkFamilyTokenizeParallel(b *testing.B) {
	family, err := NewFamily(DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	text := "Olympic athlete breaks world record in swimming competition."
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = family.Tokenize(text)
		}
	})
}

func BenchmarkNormalize(b *testing.B) {
	text := "Café owners in Zürich report récord sales; naïve forecasts missed it."
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Normalize(text)
	}
}
