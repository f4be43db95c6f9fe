// Package expr implements the restricted guard-expression language evaluated
// against execution contexts. The grammar covers comparisons, boolean
// combinators and context field lookups only; general code execution is
// deliberately unsupported.
//
//	guard := or
//	or    := and ("||" and)*
//	and   := not ("&&" not)*
//	not   := "!" not | cmp
//	cmp   := term (("==" | "!=" | "<" | "<=" | ">" | ">=") term)?
//	term  := literal | lookup | "(" guard ")"
//
// Lookups are dotted paths resolved against the context document, e.g.
// `trigger_data.amount >= 100 && variables.region == "eu"`.
package expr

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/jp"
)

var (
	// ErrParse indicates the expression does not conform to the grammar.
	ErrParse = errors.New("invalid guard expression")

	// ErrType indicates operands of incompatible types were compared.
	ErrType = errors.New("type mismatch in guard expression")
)

// Evaluate parses and evaluates a guard expression against the given context
// document. An empty expression evaluates to true, matching unguarded edges.
func Evaluate(expression string, data map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	p := &parser{tokens: lex(expression), src: expression}

	node, err := p.parseOr()
	if err != nil {
		return false, err
	}

	if !p.atEnd() {
		return false, fmt.Errorf("%w: unexpected %q in %q", ErrParse, p.peek().text, expression)
	}

	value, err := node.eval(data)
	if err != nil {
		return false, err
	}

	return Truthy(value), nil
}

// Truthy converts an evaluated value to a boolean. Booleans pass through,
// numbers are true when non-zero, strings when they parse as a true boolean,
// nil is false.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(v)

		return err == nil && parsed
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}

type node interface {
	eval(data map[string]any) (any, error)
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(data map[string]any) (any, error) {
	left, err := n.left.eval(data)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "&&":
		if !Truthy(left) {
			return false, nil
		}

		right, err := n.right.eval(data)
		if err != nil {
			return nil, err
		}

		return Truthy(right), nil
	case "||":
		if Truthy(left) {
			return true, nil
		}

		right, err := n.right.eval(data)
		if err != nil {
			return nil, err
		}

		return Truthy(right), nil
	}

	right, err := n.right.eval(data)
	if err != nil {
		return nil, err
	}

	return compare(n.op, left, right)
}

type notNode struct {
	inner node
}

func (n *notNode) eval(data map[string]any) (any, error) {
	value, err := n.inner.eval(data)
	if err != nil {
		return nil, err
	}

	return !Truthy(value), nil
}

type literalNode struct {
	value any
}

func (n *literalNode) eval(_ map[string]any) (any, error) {
	return n.value, nil
}

type lookupNode struct {
	path *jp.Expr
}

func (n *lookupNode) eval(data map[string]any) (any, error) {
	return n.path.First(data), nil
}

func compare(op string, left, right any) (any, error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)

	if lok && rok {
		switch op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)

	if lok && rok {
		switch op {
		case "==":
			return ls == rs, nil
		case "!=":
			return ls != rs, nil
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}

	// Mixed or non-ordered types support equality only.
	switch op {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	}

	return nil, fmt.Errorf("%w: cannot %s %T and %T", ErrType, op, left, right)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
