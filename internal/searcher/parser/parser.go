// Package parser turns free-text query strings into query trees. The syntax
// is a small subset of the classic Lucene query language:
//
//	acme beverage         either term (default OR)
//	"acme beverage co"    exact phrase
//	supplier:acme         field-qualified clause
//	bev*                  prefix
//	pepsi~ pepsi~1        fuzzy, max edits 0..2 (default 2)
//	+acme -zed NOT zed    required / prohibited clauses
//	a AND b, a OR b       conjunctions
//	(a OR b) AND c        grouping
//
// Malformed input produces a *SyntaxError.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

// SyntaxError describes malformed query text. Pos is a rune offset.
type SyntaxError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at position %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return apperrors.ErrQuerySyntax
}

type tokenKind int

const (
	tWord tokenKind = iota
	tPhrase
	tLParen
	tRParen
	tAnd
	tOr
	tNot
	tPlus
	tMinus
)

type token struct {
	kind  tokenKind
	text  string
	field string
	pos   int
}

// Parse parses text against defaultField. Blank text yields a nil query and
// no error.
func Parse(defaultField, text string) (query.Query, error) {
	if !index.IsSearchable(defaultField) {
		return nil, &SyntaxError{Query: text, Pos: 0, Msg: fmt.Sprintf("unknown field %q", defaultField)}
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{input: text, toks: toks}
	q, err := p.parseQuery(defaultField, 0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, p.errorAt(p.toks[p.pos].pos, "unbalanced parenthesis")
	}
	return q, nil
}

type parser struct {
	input string
	toks  []token
	pos   int
}

func (p *parser) errorAt(pos int, msg string) *SyntaxError {
	return &SyntaxError{Query: p.input, Pos: pos, Msg: msg}
}

func (p *parser) endPos() int {
	return len([]rune(p.input))
}

func (p *parser) parseQuery(field string, depth int) (query.Query, error) {
	var clauses []query.Clause
	var conj *token
	for p.pos < len(p.toks) {
		tok := p.toks[p.pos]
		if tok.kind == tRParen {
			if depth == 0 {
				return nil, p.errorAt(tok.pos, "unbalanced parenthesis")
			}
			break
		}
		if tok.kind == tAnd || tok.kind == tOr {
			if len(clauses) == 0 || conj != nil {
				return nil, p.errorAt(tok.pos, fmt.Sprintf("dangling operator %s", tok.text))
			}
			conj = &p.toks[p.pos]
			p.pos++
			continue
		}

		var modifier *token
		if tok.kind == tPlus || tok.kind == tMinus || tok.kind == tNot {
			modifier = &p.toks[p.pos]
			p.pos++
			if p.pos >= len(p.toks) || !startsClause(p.toks[p.pos].kind) {
				return nil, p.errorAt(tok.pos, fmt.Sprintf("dangling operator %s", tok.text))
			}
		}

		sub, err := p.parseClause(field, depth)
		if err != nil {
			return nil, err
		}
		and := conj != nil && conj.kind == tAnd
		conj = nil
		if sub == nil {
			continue
		}
		if and && len(clauses) > 0 {
			last := &clauses[len(clauses)-1]
			if last.Occur != query.MustNot {
				last.Occur = query.Must
			}
		}
		occur := query.Should
		switch {
		case modifier != nil && modifier.kind == tPlus:
			occur = query.Must
		case modifier != nil:
			occur = query.MustNot
		case and:
			occur = query.Must
		}
		clauses = append(clauses, query.Clause{Occur: occur, Query: sub})
	}
	if conj != nil {
		return nil, p.errorAt(conj.pos, fmt.Sprintf("dangling operator %s", conj.text))
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	if len(clauses) == 1 && clauses[0].Occur != query.MustNot {
		return clauses[0].Query, nil
	}
	return &query.Boolean{Clauses: clauses}, nil
}

func startsClause(k tokenKind) bool {
	return k == tWord || k == tPhrase || k == tLParen
}

func (p *parser) parseClause(inherited string, depth int) (query.Query, error) {
	tok := p.toks[p.pos]
	field := inherited
	if tok.field != "" {
		if !index.IsSearchable(tok.field) {
			return nil, p.errorAt(tok.pos, fmt.Sprintf("unknown field %q", tok.field))
		}
		field = tok.field
	}
	p.pos++

	switch tok.kind {
	case tLParen:
		sub, err := p.parseQuery(field, depth+1)
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tRParen {
			return nil, p.errorAt(tok.pos, "unbalanced parenthesis")
		}
		p.pos++
		if sub == nil {
			return nil, p.errorAt(tok.pos, "empty group")
		}
		return sub, nil
	case tPhrase:
		return query.Exact(field, tok.text), nil
	case tWord:
		return p.wordQuery(field, tok)
	default:
		return nil, p.errorAt(tok.pos, fmt.Sprintf("unexpected %q", tok.text))
	}
}

func (p *parser) wordQuery(field string, tok token) (query.Query, error) {
	text := tok.text
	switch {
	case strings.HasSuffix(text, "*"):
		base := tokenizer.Normalize(strings.TrimSuffix(text, "*"))
		if base == "" {
			return nil, p.errorAt(tok.pos, "prefix query needs at least one letter or digit")
		}
		return query.Prefix{Field: field, Prefix: base}, nil
	case strings.Contains(text, "~"):
		i := strings.LastIndex(text, "~")
		edits := query.FuzzyMaxEdits
		if s := text[i+1:]; s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 || n > query.FuzzyMaxEdits {
				return nil, p.errorAt(tok.pos, fmt.Sprintf("invalid fuzzy distance %q (want 0..%d)", s, query.FuzzyMaxEdits))
			}
			edits = n
		}
		base := tokenizer.Normalize(text[:i])
		if base == "" {
			return nil, p.errorAt(tok.pos, "fuzzy query needs at least one letter or digit")
		}
		if edits == 0 {
			return query.Term{Field: field, Text: base}, nil
		}
		return query.Fuzzy{Field: field, Text: base, MaxEdits: edits}, nil
	}
	terms := tokenizer.Terms(text)
	if len(terms) == 0 {
		return nil, nil
	}
	return query.Exact(field, text), nil
}

func lex(input string) ([]token, error) {
	rs := []rune(input)
	toks := make([]token, 0, 8)
	pendingField := ""
	pendingPos := 0
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{kind: tLParen, text: "(", field: pendingField, pos: pick(pendingField, pendingPos, i)})
			pendingField = ""
			i++
		case r == ')':
			toks = append(toks, token{kind: tRParen, text: ")", pos: i})
			i++
		case r == '"':
			start := i
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			if j >= len(rs) {
				return nil, &SyntaxError{Query: input, Pos: start, Msg: "unterminated quote"}
			}
			toks = append(toks, token{kind: tPhrase, text: string(rs[i+1 : j]), field: pendingField, pos: pick(pendingField, pendingPos, start)})
			pendingField = ""
			i = j + 1
			if i < len(rs) && rs[i] == '~' {
				return nil, &SyntaxError{Query: input, Pos: i, Msg: "phrase slop is not supported"}
			}
		case (r == '+' || r == '-') && atClauseStart(rs, i):
			if i+1 >= len(rs) || unicode.IsSpace(rs[i+1]) || rs[i+1] == ')' {
				return nil, &SyntaxError{Query: input, Pos: i, Msg: fmt.Sprintf("dangling operator %c", r)}
			}
			kind := tPlus
			if r == '-' {
				kind = tMinus
			}
			toks = append(toks, token{kind: kind, text: string(r), pos: i})
			i++
		default:
			start := i
			for i < len(rs) && !unicode.IsSpace(rs[i]) && rs[i] != '(' && rs[i] != ')' && rs[i] != '"' {
				if rs[i] == ':' && i > start {
					break
				}
				i++
			}
			if i < len(rs) && rs[i] == ':' {
				field := string(rs[start:i])
				i++
				if i >= len(rs) || unicode.IsSpace(rs[i]) || rs[i] == ')' {
					return nil, &SyntaxError{Query: input, Pos: start, Msg: fmt.Sprintf("missing value for field %q", field)}
				}
				if rs[i] == '"' || rs[i] == '(' {
					pendingField = field
					pendingPos = start
					continue
				}
				vstart := i
				for i < len(rs) && !unicode.IsSpace(rs[i]) && rs[i] != '(' && rs[i] != ')' && rs[i] != '"' {
					i++
				}
				toks = append(toks, token{kind: tWord, text: string(rs[vstart:i]), field: field, pos: start})
				continue
			}
			word := string(rs[start:i])
			kind := tWord
			switch word {
			case "AND", "&&":
				kind = tAnd
			case "OR", "||":
				kind = tOr
			case "NOT", "!":
				kind = tNot
			}
			toks = append(toks, token{kind: kind, text: word, pos: start})
		}
	}
	return toks, nil
}

func atClauseStart(rs []rune, i int) bool {
	return i == 0 || unicode.IsSpace(rs[i-1]) || rs[i-1] == '('
}

func pick(field string, fieldPos, pos int) int {
	if field != "" {
		return fieldPos
	}
	return pos
}
