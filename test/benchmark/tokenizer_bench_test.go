package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"supplier":    "Acme Beverage Co",
	"description": "Coca-Cola Zero Sugar 24 x 330ml cans (multipack), café edition",
	"long":        strings.Repeat("Pepsi Max Cherry 2L bottle; Irn-Bru Xtra 500ml; Fanta Orange 6x330ml ", 40),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTermsParallel(b *testing.B) {
	text := sampleTexts["description"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Terms(text)
		}
	})
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	base := "Diet Coke 330ml can Pepsi Max bottle "
	for _, size := range []int{16, 128, 1024, 8192} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}
