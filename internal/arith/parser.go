package arith

import "fmt"

// parser implements the grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = ("+" | "-") unary | primary
//	primary = number | "(" expr ")"
type parser struct {
	toks []token
	pos  int
}

func (p *parser) parse() (float64, error) {
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.toks) {
		return 0, fmt.Errorf("%w: unexpected token at position %d", ErrSyntax, p.pos)
	}
	return v, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) peekOp(ops ...byte) (byte, bool) {
	t, ok := p.peek()
	if !ok || t.kind != tokOp {
		return 0, false
	}
	for _, op := range ops {
		if t.op == op {
			return op, true
		}
	}
	return 0, false
}

func (p *parser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp('+', '-')
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp('*', '/')
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
			continue
		}
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		left /= right
	}
}

func (p *parser) unary() (float64, error) {
	if op, ok := p.peekOp('+', '-'); ok {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == '-' {
			return -v, nil
		}
		return v, nil
	}
	return p.primary()
}

func (p *parser) primary() (float64, error) {
	t, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		return t.num, nil
	case tokLParen:
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if next, ok := p.peek(); !ok || next.kind != tokRParen {
			return 0, fmt.Errorf("%w: missing closing parenthesis", ErrSyntax)
		}
		p.pos++
		return v, nil
	}
	return 0, fmt.Errorf("%w: unexpected token at position %d", ErrSyntax, p.pos)
}
