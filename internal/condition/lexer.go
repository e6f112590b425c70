package condition

import (
	"fmt"
)

// TokenType identifies the lexical class of a token
type TokenType int

const (
	TokenEOF      TokenType = iota
	TokenWord               // unquoted run: field paths, keywords, bare literals
	TokenString             // quoted literal, quotes removed
	TokenEq                 // ==
	TokenNe                 // !=
	TokenLBracket           // [
	TokenRBracket           // ]
	TokenComma              // ,
	TokenIllegal            // lexing error, Value holds the message
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenWord:
		return "word"
	case TokenString:
		return "string"
	case TokenEq:
		return "'=='"
	case TokenNe:
		return "'!='"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenComma:
		return "','"
	default:
		return "illegal"
	}
}

// Token is one lexical unit of a predicate
type Token struct {
	Type     TokenType
	Value    string
	Position int // byte offset in the predicate
}

func (t Token) String() string {
	if t.Type == TokenWord || t.Type == TokenString {
		return fmt.Sprintf("%s %q", t.Type, t.Value)
	}
	return t.Type.String()
}

// Lexer splits a predicate into tokens
type Lexer struct {
	input    string
	position int
	tokens   []Token
}

// NewLexer returns a lexer positioned at the start of input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		tokens: make([]Token, 0, 8),
	}
}

// Tokenize scans the whole input. The result always ends with TokenEOF, or
// with TokenIllegal when the input cannot be tokenized.
func (l *Lexer) Tokenize() []Token {
	for l.position < len(l.input) {
		start := l.position
		c := l.input[l.position]

		switch {
		case isSpace(c):
			l.position++

		case c == '[':
			l.addToken(TokenLBracket, "[", start)
			l.position++

		case c == ']':
			l.addToken(TokenRBracket, "]", start)
			l.position++

		case c == ',':
			l.addToken(TokenComma, ",", start)
			l.position++

		case c == '\'' || c == '"':
			if !l.lexString(c) {
				return l.tokens
			}

		case c == '=' && l.peek() == '=':
			l.addToken(TokenEq, "==", start)
			l.position += 2

		case c == '!' && l.peek() == '=':
			l.addToken(TokenNe, "!=", start)
			l.position += 2

		default:
			l.lexWord()
		}
	}

	l.addToken(TokenEOF, "", l.position)
	return l.tokens
}

// lexString consumes a quoted literal. Quotes have no escape sequences.
func (l *Lexer) lexString(quote byte) bool {
	start := l.position
	for i := start + 1; i < len(l.input); i++ {
		if l.input[i] == quote {
			l.addToken(TokenString, l.input[start+1:i], start)
			l.position = i + 1
			return true
		}
	}
	l.addToken(TokenIllegal, "unterminated quoted literal", start)
	l.position = len(l.input)
	return false
}

// lexWord consumes an unquoted run up to whitespace, a delimiter, a quote or
// the start of a comparison operator.
func (l *Lexer) lexWord() {
	start := l.position
	for l.position < len(l.input) {
		c := l.input[l.position]
		if isSpace(c) || c == '[' || c == ']' || c == ',' || c == '\'' || c == '"' {
			break
		}
		if (c == '=' || c == '!') && l.peek() == '=' {
			break
		}
		l.position++
	}
	l.addToken(TokenWord, l.input[start:l.position], start)
}

func (l *Lexer) peek() byte {
	if l.position+1 < len(l.input) {
		return l.input[l.position+1]
	}
	return 0
}

func (l *Lexer) addToken(tokenType TokenType, value string, pos int) {
	l.tokens = append(l.tokens, Token{
		Type:     tokenType,
		Value:    value,
		Position: pos,
	})
}

// isSpace reports ASCII whitespace only. Bytes of multi-byte UTF-8 runes are
// never separators, so non-ASCII bare literals stay whole.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
