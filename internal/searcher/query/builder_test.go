package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
)

func TestSupplierSet(t *testing.T) {
	q := SupplierSet(" S1, Acme Beverage Co ,,S3 ")
	b, ok := q.(*Boolean)
	require.True(t, ok)
	require.Len(t, b.Clauses, 3)
	for _, c := range b.Clauses {
		assert.Equal(t, Should, c.Occur)
	}
	assert.Equal(t, Term{Field: index.FieldSupplier, Text: "s1"}, b.Clauses[0].Query)
	assert.Equal(t, Phrase{Field: index.FieldSupplier, Terms: []string{"acme", "beverage", "co"}}, b.Clauses[1].Query)
	assert.Equal(t, `supplier:s1 supplier:"acme beverage co" supplier:s3`, q.String())
}

func TestSupplierSetBlank(t *testing.T) {
	assert.Nil(t, SupplierSet(""))
	assert.Nil(t, SupplierSet(" , ,"))
	assert.Equal(t, MatchNone{}, SupplierSet("--"))
}

func TestFuzzyFilterThreshold(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"four runes prefix only", "Coke", "+brand:coke*"},
		{"five runes fuzzy or prefix", "Pepsi", "+(brand:pepsi~2 brand:pepsi*)"},
		{"terms are and-joined", "Diet Pepsi", "+brand:diet* +(brand:pepsi~2 brand:pepsi*)"},
		{"punctuation splits tokens", "Coca-Cola", "+brand:coca* +brand:cola*"},
		{"threshold counts runes", "Café", "+brand:café*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := FuzzyFilter(index.FieldBrand, tt.text)
			require.NotNil(t, q)
			assert.Equal(t, tt.want, q.String())
		})
	}
}

func TestFuzzyFilterConstants(t *testing.T) {
	assert.Equal(t, 4, FuzzyMinLength)
	assert.Equal(t, 2, FuzzyMaxEdits)

	q := FuzzyFilter(index.FieldItemDescription, "crisps").(*Boolean)
	inner := q.Clauses[0].Query.(*Boolean)
	assert.Equal(t, Fuzzy{Field: index.FieldItemDescription, Text: "crisps", MaxEdits: 2}, inner.Clauses[0].Query)
	assert.Equal(t, Prefix{Field: index.FieldItemDescription, Prefix: "crisps"}, inner.Clauses[1].Query)
}

func TestFuzzyFilterBlankAndEmpty(t *testing.T) {
	assert.Nil(t, FuzzyFilter(index.FieldBrand, ""))
	assert.Nil(t, FuzzyFilter(index.FieldBrand, "   "))
	assert.Equal(t, MatchNone{}, FuzzyFilter(index.FieldBrand, "&& --"))
}

func TestComposite(t *testing.T) {
	q := Composite("S1,S2", "Coke", "")
	assert.Equal(t, "+(supplier:s1 supplier:s2) +(+brand:coke*)", q.String())

	q = Composite("S1", "", "diet cola")
	assert.Equal(t, "+(supplier:s1) +(+itemDescription:diet* +itemDescription:cola*)", q.String())

	q = Composite("S1", "  ", "  ")
	assert.Equal(t, "+(supplier:s1)", q.String())

	assert.Nil(t, Composite(" ", "Coke", "cola"))
}

func TestExact(t *testing.T) {
	assert.Equal(t, Term{Field: "supplier", Text: "acme"}, Exact("supplier", "ACME"))
	assert.Equal(t, Phrase{Field: "supplier", Terms: []string{"acme", "co"}}, Exact("supplier", "Acme Co"))
	assert.Equal(t, MatchNone{}, Exact("supplier", "!!"))
}
