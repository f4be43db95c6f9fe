package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/ohler55/ojg/jp"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenOperator
	tokenLeftParen
	tokenRightParen
	tokenInvalid
)

type token struct {
	kind tokenKind
	text string
}

func lex(src string) []token {
	var tokens []token

	i := 0
	for i < len(src) {
		c := src[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokenLeftParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRightParen, ")"})
			i++
		case strings.HasPrefix(src[i:], "&&") || strings.HasPrefix(src[i:], "||") ||
			strings.HasPrefix(src[i:], "==") || strings.HasPrefix(src[i:], "!=") ||
			strings.HasPrefix(src[i:], "<=") || strings.HasPrefix(src[i:], ">="):
			tokens = append(tokens, token{tokenOperator, src[i : i+2]})
			i += 2
		case c == '<' || c == '>' || c == '!':
			tokens = append(tokens, token{tokenOperator, string(c)})
			i++
		case c == '"' || c == '\'':
			quote := c
			j := i + 1

			for j < len(src) && src[j] != quote {
				j++
			}

			if j >= len(src) {
				tokens = append(tokens, token{tokenInvalid, src[i:]})

				return tokens
			}

			tokens = append(tokens, token{tokenString, src[i+1 : j]})
			i = j + 1
		case c >= '0' && c <= '9' || c == '-':
			j := i + 1
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}

			tokens = append(tokens, token{tokenNumber, src[i:j]})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i + 1
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) ||
				src[j] == '_' || src[j] == '.' || src[j] == '[' || src[j] == ']') {
				j++
			}

			tokens = append(tokens, token{tokenIdent, src[i:j]})
			i = j
		default:
			tokens = append(tokens, token{tokenInvalid, string(c)})
			i++
		}
	}

	tokens = append(tokens, token{tokenEOF, ""})

	return tokens
}

type parser struct {
	tokens []token
	pos    int
	src    string
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}

	return t
}

func (p *parser) atEnd() bool {
	return p.peek().kind == tokenEOF
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOperator && p.peek().text == "||" {
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = &binaryNode{op: "||", left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOperator && p.peek().text == "&&" {
		p.next()

		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		left = &binaryNode{op: "&&", left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tokenOperator && p.peek().text == "!" {
		p.next()

		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return &notNode{inner: inner}, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	if t.kind == tokenOperator {
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=":
			p.next()

			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}

			return &binaryNode{op: t.text, left: left, right: right}, nil
		}
	}

	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	t := p.next()

	switch t.kind {
	case tokenLeftParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if closing := p.next(); closing.kind != tokenRightParen {
			return nil, fmt.Errorf("%w: missing ')' in %q", ErrParse, p.src)
		}

		return inner, nil
	case tokenNumber:
		value, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrParse, t.text)
		}

		return &literalNode{value: value}, nil
	case tokenString:
		return &literalNode{value: t.text}, nil
	case tokenIdent:
		switch t.text {
		case "true":
			return &literalNode{value: true}, nil
		case "false":
			return &literalNode{value: false}, nil
		case "null", "nil":
			return &literalNode{value: nil}, nil
		}

		path, err := jp.ParseString("$." + t.text)
		if err != nil {
			return nil, fmt.Errorf("%w: bad lookup path %q", ErrParse, t.text)
		}

		return &lookupNode{path: &path}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q in %q", ErrParse, t.text, p.src)
	}
}
