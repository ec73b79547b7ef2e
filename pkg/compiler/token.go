package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // binding / function name
	NUMBER     // decimal literal, optional fractional part

	// Keywords
	LET    // "let"
	RETURN // "return"
	FN     // "fn"

	// Arithmetic operators
	PLUS  // +
	MINUS // -
	STAR  // *
	SLASH // /

	ASSIGN // =

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,

	// Paired delimiters
	LPAREN   // (
	RPAREN   // )
	LBRACE   // {
	RBRACE   // }
	LBRACKET // [
	RBRACKET // ]
)

var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	NUMBER:     "NUMBER",
	LET:        "LET",
	RETURN:     "RETURN",
	FN:         "FN",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	ASSIGN:     "ASSIGN",
	SEMICOLON:  "SEMICOLON",
	COMMA:      "COMMA",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	LBRACKET:   "LBRACKET",
	RBRACKET:   "RBRACKET",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// symbols gives the source spelling of fixed tokens, used in error messages.
var symbols = map[TokenType]string{
	LET:       "let",
	RETURN:    "return",
	FN:        "fn",
	PLUS:      "+",
	MINUS:     "-",
	STAR:      "*",
	SLASH:     "/",
	ASSIGN:    "=",
	SEMICOLON: ";",
	COMMA:     ",",
	LPAREN:    "(",
	RPAREN:    ")",
	LBRACE:    "{",
	RBRACE:    "}",
	LBRACKET:  "[",
	RBRACKET:  "]",
}

// Describe returns a human-readable name: the symbol for fixed tokens, the
// category otherwise ("identifier", "number", "end of input").
func (tt TokenType) Describe() string {
	if s, ok := symbols[tt]; ok {
		return fmt.Sprintf("'%s'", s)
	}
	switch tt {
	case IDENTIFIER:
		return "identifier"
	case NUMBER:
		return "number"
	case EOF:
		return "end of input"
	}
	return tt.String()
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string  // the exact source text that was matched
	Value  float64 // payload of NUMBER tokens
	Line   int     // 1-based source line
	Col    int     // 1-based column, in runes
	Offset int     // byte offset into the source
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  %d:%d", t.Type, t.Lexeme, t.Line, t.Col)
}
