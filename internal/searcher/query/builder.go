package query

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
)

const (
	// FuzzyMinLength is the token length a filter token must exceed before
	// it is matched fuzzily as well as by prefix.
	FuzzyMinLength = 4
	// FuzzyMaxEdits is the edit distance used for fuzzy filter tokens.
	FuzzyMaxEdits = 2
)

// SupplierSet matches any of the comma-separated supplier ids in csv. Each
// id must match the supplier field as an exact phrase. It returns nil when
// csv holds no ids.
func SupplierSet(csv string) Query {
	ids := catalog.SplitCSV(csv)
	if len(ids) == 0 {
		return nil
	}
	set := &Boolean{}
	for _, id := range ids {
		terms := tokenizer.Terms(id)
		if len(terms) == 0 {
			continue
		}
		set.Add(Should, exact(index.FieldSupplier, terms))
	}
	if len(set.Clauses) == 0 {
		return MatchNone{}
	}
	return set
}

// FuzzyFilter builds the brand/description filter for text: every analyzed
// token must match. Tokens longer than FuzzyMinLength match within
// FuzzyMaxEdits or by prefix; shorter tokens match by prefix only. Blank
// text returns nil. Text with no analyzable tokens returns MatchNone.
func FuzzyFilter(field, text string) Query {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	filter := &Boolean{}
	for _, word := range words {
		for _, token := range tokenizer.Terms(word) {
			filter.Add(Must, fuzzyToken(field, token))
		}
	}
	if len(filter.Clauses) == 0 {
		return MatchNone{}
	}
	return filter
}

func fuzzyToken(field, token string) Query {
	prefix := Prefix{Field: field, Prefix: token}
	if tokenizer.Length(token) <= FuzzyMinLength {
		return prefix
	}
	return &Boolean{Clauses: []Clause{
		{Occur: Should, Query: Fuzzy{Field: field, Text: token, MaxEdits: FuzzyMaxEdits}},
		{Occur: Should, Query: prefix},
	}}
}

// Composite restricts the supplier set by optional brand and description
// filters. All present parts are required. It returns nil when the supplier
// list is blank.
func Composite(suppliersCSV, brand, description string) Query {
	suppliers := SupplierSet(suppliersCSV)
	if suppliers == nil {
		return nil
	}
	q := &Boolean{}
	q.Add(Must, suppliers)
	if f := FuzzyFilter(index.FieldBrand, brand); f != nil {
		q.Add(Must, f)
	}
	if f := FuzzyFilter(index.FieldItemDescription, description); f != nil {
		q.Add(Must, f)
	}
	return q
}

// Exact matches the analyzed form of text in field: a Term for one token,
// a Phrase for several. It returns MatchNone when text has no tokens.
func Exact(field, text string) Query {
	terms := tokenizer.Terms(text)
	if len(terms) == 0 {
		return MatchNone{}
	}
	return exact(field, terms)
}

func exact(field string, terms []string) Query {
	if len(terms) == 1 {
		return Term{Field: field, Text: terms[0]}
	}
	return Phrase{Field: field, Terms: terms}
}
