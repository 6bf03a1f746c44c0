package formula

import (
	"fmt"
	"strings"
)

// TokenType classifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenFieldRef
	TokenOperator
	TokenLeftParen
	TokenRightParen
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of formula"
	case TokenNumber:
		return "number"
	case TokenFieldRef:
		return "field reference"
	case TokenOperator:
		return "operator"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// Token is a lexical token. Pos is the byte offset of the token in the
// formula text.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// ParseError reports malformed formula text.
type ParseError struct {
	Text    string
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("formula %q: %s at offset %d", e.Text, e.Message, e.Pos)
}

// Tokenize splits formula text into tokens. The returned slice always ends
// with a TokenEOF token.
func Tokenize(text string) ([]Token, error) {
	tokens := make([]Token, 0, len(text)/2+1)
	pos := 0

	for pos < len(text) {
		ch := text[pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			pos++

		case isDigit(ch) || ch == '.':
			start := pos
			seenDot := false
			digits := 0
			for pos < len(text) && (isDigit(text[pos]) || text[pos] == '.') {
				if text[pos] == '.' {
					if seenDot {
						return nil, &ParseError{Text: text, Pos: pos, Message: "unexpected second decimal point"}
					}
					seenDot = true
				} else {
					digits++
				}
				pos++
			}
			if digits == 0 {
				return nil, &ParseError{Text: text, Pos: start, Message: "decimal point without digits"}
			}
			tokens = append(tokens, Token{Type: TokenNumber, Value: text[start:pos], Pos: start})

		case ch == '#':
			start := pos
			if pos+1 >= len(text) || text[pos+1] != '{' {
				return nil, &ParseError{Text: text, Pos: pos, Message: "expected '{' after '#'"}
			}
			end := strings.IndexByte(text[pos+2:], '}')
			if end < 0 {
				return nil, &ParseError{Text: text, Pos: pos, Message: "unterminated field reference"}
			}
			id := strings.TrimSpace(text[pos+2 : pos+2+end])
			if id == "" {
				return nil, &ParseError{Text: text, Pos: pos, Message: "empty field reference"}
			}
			tokens = append(tokens, Token{Type: TokenFieldRef, Value: id, Pos: start})
			pos += end + 3

		case strings.IndexByte("+-*/%", ch) >= 0:
			tokens = append(tokens, Token{Type: TokenOperator, Value: string(ch), Pos: pos})
			pos++

		case ch == '(':
			tokens = append(tokens, Token{Type: TokenLeftParen, Value: "(", Pos: pos})
			pos++

		case ch == ')':
			tokens = append(tokens, Token{Type: TokenRightParen, Value: ")", Pos: pos})
			pos++

		default:
			return nil, &ParseError{Text: text, Pos: pos, Message: fmt.Sprintf("unexpected character %q", ch)}
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Pos: len(text)})
	return tokens, nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
