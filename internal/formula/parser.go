package formula

import (
	"fmt"
	"math/big"
)

// Parser is a recursive descent parser over a token stream.
//
//	expr    := term (('+' | '-') term)*
//	term    := factor (('*' | '/' | '%') factor)*
//	factor  := NUMBER | NUMBER '%' | FIELD_REF | '(' expr ')'
type Parser struct {
	text   string
	tokens []Token
	pos    int
}

// Parse parses formula text into a Formula.
func Parse(text string) (*Formula, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}

	p := &Parser{text: text, tokens: tokens}
	root, err := p.Parse()
	if err != nil {
		return nil, err
	}

	return &Formula{
		Text: text,
		Root: root,
		deps: Dependencies(root),
	}, nil
}

// MustParse is like Parse but panics on malformed text. Intended for tests
// and package-level fixtures.
func MustParse(text string) *Formula {
	f, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return f
}

// Parse consumes the whole token stream.
func (p *Parser) Parse() (Node, error) {
	if p.peek().Type == TokenEOF {
		return nil, p.errorf(p.peek(), "empty formula")
	}

	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, p.errorf(tok, "unexpected %s %q", tok.Type, tok.Value)
	}
	return node, nil
}

// parseExpr handles addition and subtraction
func (p *Parser) parseExpr() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.Type != TokenOperator {
			return left, nil
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = OpAdd
		case "-":
			op = OpSub
		default:
			return left, nil
		}
		p.pos++

		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right}
	}
}

// parseTerm handles multiplication, division, and modulo
func (p *Parser) parseTerm() (Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.Type != TokenOperator {
			return left, nil
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = OpMul
		case "/":
			op = OpDiv
		case "%":
			op = OpMod
		default:
			return left, nil
		}
		p.pos++

		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseFactor() (Node, error) {
	tok := p.peek()

	switch tok.Type {
	case TokenNumber:
		p.pos++
		value, err := parseDecimal(tok.Value)
		if err != nil {
			return nil, p.errorf(tok, "invalid number %q", tok.Value)
		}
		// a '%' that does not start a modulo operand is a percent suffix
		if next := p.peek(); next.Type == TokenOperator && next.Value == "%" && !p.startsFactor(p.pos+1) {
			p.pos++
			return &PercentNode{Value: value}, nil
		}
		return &NumberNode{Value: value}, nil

	case TokenFieldRef:
		p.pos++
		return &FieldRefNode{ID: FieldID(tok.Value)}, nil

	case TokenLeftParen:
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.peek(); closing.Type != TokenRightParen {
			return nil, p.errorf(closing, "expected ')' but found %s", closing.Type)
		}
		p.pos++
		return &GroupNode{Inner: inner}, nil

	case TokenEOF:
		return nil, p.errorf(tok, "unexpected end of formula")

	default:
		return nil, p.errorf(tok, "unexpected %s %q", tok.Type, tok.Value)
	}
}

// startsFactor reports whether the token at i can begin a factor.
func (p *Parser) startsFactor(i int) bool {
	if i >= len(p.tokens) {
		return false
	}
	switch p.tokens[i].Type {
	case TokenNumber, TokenFieldRef, TokenLeftParen:
		return true
	default:
		return false
	}
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF, Pos: len(p.text)}
	}
	return p.tokens[p.pos]
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return &ParseError{Text: p.text, Pos: tok.Pos, Message: fmt.Sprintf(format, args...)}
}

// parseDecimal converts a lexed decimal literal into an exact rational.
func parseDecimal(lit string) (*big.Rat, error) {
	if lit != "" && lit[0] == '.' {
		lit = "0" + lit
	}
	if lit != "" && lit[len(lit)-1] == '.' {
		lit += "0"
	}
	r, ok := new(big.Rat).SetString(lit)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", lit)
	}
	return r, nil
}
