// Package query defines the typed query tree evaluated by the executor and
// the builders that turn supplier lists and free-text filters into trees.
package query

import (
	"fmt"
	"strings"
)

// Query is a node of the query tree.
type Query interface {
	String() string
	isQuery()
}

// Occur says how a boolean clause participates in matching.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// Term matches documents whose field contains the exact analyzed token.
type Term struct {
	Field string
	Text  string
}

// Phrase matches documents whose field contains Terms at consecutive
// positions.
type Phrase struct {
	Field string
	Terms []string
}

// Prefix matches documents whose field has a token starting with Prefix.
type Prefix struct {
	Field  string
	Prefix string
}

// Fuzzy matches documents whose field has a token within MaxEdits
// insertions, deletions, substitutions or adjacent transpositions of Text.
type Fuzzy struct {
	Field    string
	Text     string
	MaxEdits int
}

// Clause is one operand of a Boolean query.
type Clause struct {
	Occur Occur
	Query Query
}

// Boolean combines clauses. With at least one Must clause, Should clauses
// only contribute score; otherwise at least one Should clause must match.
// MustNot clauses exclude. A Boolean with only MustNot clauses matches
// nothing.
type Boolean struct {
	Clauses []Clause
}

// MatchNone matches no document.
type MatchNone struct{}

func (Term) isQuery()      {}
func (Phrase) isQuery()    {}
func (Prefix) isQuery()    {}
func (Fuzzy) isQuery()     {}
func (*Boolean) isQuery()  {}
func (MatchNone) isQuery() {}

func (q Term) String() string { return q.Field + ":" + q.Text }

func (q Phrase) String() string {
	return fmt.Sprintf("%s:%q", q.Field, strings.Join(q.Terms, " "))
}

func (q Prefix) String() string { return q.Field + ":" + q.Prefix + "*" }

func (q Fuzzy) String() string { return fmt.Sprintf("%s:%s~%d", q.Field, q.Text, q.MaxEdits) }

func (q *Boolean) String() string {
	parts := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		s := c.Query.String()
		if _, nested := c.Query.(*Boolean); nested {
			s = "(" + s + ")"
		}
		parts = append(parts, c.Occur.String()+s)
	}
	return strings.Join(parts, " ")
}

func (MatchNone) String() string { return "MatchNone" }

// Add appends a clause and returns the receiver for chaining.
func (q *Boolean) Add(occur Occur, sub Query) *Boolean {
	q.Clauses = append(q.Clauses, Clause{Occur: occur, Query: sub})
	return q
}
