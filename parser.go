package ecsrule

import (
	"fmt"
	"unicode"
)

// ParseExpr turns a comma-separated list of terms like
// "Eats(., Apple), Knows(., Bob)" into the Term list a Rule compiles from.
// Grammar:
//
//	expr    := term (',' term)*
//	term    := ident '(' operand (',' operand)? ')'
//	operand := '.' | ident
//
// "." is This. An identifier is resolved against world's registered
// component and entity names via World.ResolveName first; if that lookup
// misses, it's a variable. This mirrors how the scenarios in the rule
// language actually read — "Alice", "Bob", "Knows", "Eats" are all
// capitalized names that happen to be registered, while "X", "Y", "Z" are
// not, so case alone can't be the discriminant.
func ParseExpr(world *World, expr string) ([]Term, error) {
	p := &exprParser{world: world, src: expr}
	terms, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("ecsrule: parse error in %q: %w", expr, err)
	}
	return terms, nil
}

type exprParser struct {
	world *World
	src   string
	pos   int
}

func (p *exprParser) parseExpr() ([]Term, error) {
	var terms []Term
	for {
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
		p.skipSpace()
		if !p.consume(',') {
			break
		}
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected trailing input at %d", p.pos)
	}
	return terms, nil
}

func (p *exprParser) parseTerm() (Term, error) {
	p.skipSpace()
	name, err := p.parseIdent()
	if err != nil {
		return Term{}, err
	}
	pred, err := p.operandFor(name)
	if err != nil {
		return Term{}, err
	}

	p.skipSpace()
	if !p.consume('(') {
		return Term{}, fmt.Errorf("expected '(' after %q at %d", name, p.pos)
	}

	subj, err := p.parseOperand()
	if err != nil {
		return Term{}, err
	}

	p.skipSpace()
	if p.consume(',') {
		obj, err := p.parseOperand()
		if err != nil {
			return Term{}, err
		}
		p.skipSpace()
		if !p.consume(')') {
			return Term{}, fmt.Errorf("expected ')' at %d", p.pos)
		}
		return Binary(pred, subj, obj), nil
	}

	p.skipSpace()
	if !p.consume(')') {
		return Term{}, fmt.Errorf("expected ')' at %d", p.pos)
	}
	return Unary(pred, subj), nil
}

func (p *exprParser) parseOperand() (Operand, error) {
	p.skipSpace()
	if p.consume('.') {
		return ThisOperand(), nil
	}
	name, err := p.parseIdent()
	if err != nil {
		return Operand{}, err
	}
	return p.operandFor(name)
}

// operandFor classifies name: if it resolves against world's registered
// names, it's a constant; otherwise it's a variable.
func (p *exprParser) operandFor(name string) (Operand, error) {
	if id, ok := p.world.ResolveName(name); ok {
		return Const(id), nil
	}
	return Var(name), nil
}

func (p *exprParser) parseIdent() (string, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := rune(p.src[p.pos])
		if c == '(' || c == ')' || c == ',' || unicode.IsSpace(c) {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("expected identifier at %d", p.pos)
	}
	return p.src[start:p.pos], nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}
