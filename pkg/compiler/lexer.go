package compiler

import (
	"fmt"
	"iter"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"let":    LET,
	"return": RETURN,
	"fn":     FN,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  string
	pos  int // byte offset of the next rune to consume
	line int // current 1-based source line
	col  int // current 1-based column
}

// NewLexer returns a lexer positioned at the start of src. Lexing is
// restartable: a new Lexer over the same source yields the same tokens.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

// decode returns the rune at byte offset at and its encoded size. A byte
// that does not start valid UTF-8 decodes as utf8.RuneError of size 1.
func (l *Lexer) decode(at int) (rune, int) {
	if at >= len(l.src) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.src[at:])
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	r, _ := l.decode(l.pos)
	return r
}

// peek2 returns the rune after the one at the current position.
func (l *Lexer) peek2() rune {
	_, size := l.decode(l.pos)
	if size == 0 {
		return 0
	}
	r, _ := l.decode(l.pos + size)
	return r
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	r, size := l.decode(l.pos)
	if size == 0 {
		return 0
	}
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment(start Token) error {
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance() // *
			l.advance() // /
			return nil
		}
		l.advance()
	}
	return &LexError{Char: '/', Offset: start.Offset, Line: start.Line, Col: start.Col, Msg: "unterminated block comment"}
}

// here returns a token stub carrying the current position.
func (l *Lexer) here() Token {
	return Token{Line: l.line, Col: l.col, Offset: l.pos}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	tok := l.here()
	start := l.pos
	for l.pos < len(l.src) && (isIdentStart(l.peek()) || isDigit(l.peek())) {
		l.advance()
	}
	tok.Lexeme = l.src[start:l.pos]
	tok.Type = IDENTIFIER
	if kw, ok := keywords[tok.Lexeme]; ok {
		tok.Type = kw
	}
	return tok
}

// scanNumber collects digits with an optional fractional part. A '.' that
// is not followed by a digit is left for the caller to reject.
func (l *Lexer) scanNumber() (Token, error) {
	tok := l.here()
	start := l.pos
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peek2()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	tok.Type = NUMBER
	tok.Lexeme = l.src[start:l.pos]

	v, err := strconv.ParseFloat(tok.Lexeme, 64)
	if err != nil {
		return Token{}, &LexError{Char: rune(l.src[start]), Offset: tok.Offset, Line: tok.Line, Col: tok.Col, Msg: "number out of range: " + tok.Lexeme}
	}
	tok.Value = v
	return tok, nil
}

var singleCharTokens = map[rune]TokenType{
	'+': PLUS,
	'-': MINUS,
	'*': STAR,
	'/': SLASH,
	'=': ASSIGN,
	';': SEMICOLON,
	',': COMMA,
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
	'[': LBRACKET,
	']': RBRACKET,
}

// Next skips whitespace and comments and returns the next Token. After the
// end of input it keeps returning EOF.
func (l *Lexer) Next() (Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			tok := l.here()
			tok.Type = EOF
			return tok, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			start := l.here()
			l.advance()
			l.advance()
			if err := l.skipBlockComment(start); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	if isIdentStart(ch) {
		return l.scanIdent(), nil
	}
	if isDigit(ch) {
		return l.scanNumber()
	}

	tok := l.here()
	tt, ok := singleCharTokens[ch]
	if !ok {
		err := &LexError{Char: ch, Offset: tok.Offset, Line: tok.Line, Col: tok.Col}
		if _, size := l.decode(l.pos); ch == utf8.RuneError && size == 1 {
			err.Char = rune(l.src[l.pos])
			err.Msg = fmt.Sprintf("invalid UTF-8 byte 0x%02X (offset %d)", l.src[l.pos], l.pos)
		}
		return Token{}, err
	}
	l.advance()
	tok.Type = tt
	tok.Lexeme = string(ch)
	return tok, nil
}

// Tokens returns the lazy token sequence of src, ending with EOF or with
// the first error.
func Tokens(src string) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		l := NewLexer(src)
		for {
			tok, err := l.Next()
			if !yield(tok, err) || err != nil || tok.Type == EOF {
				return
			}
		}
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a non-nil error on the first illegal character or unterminated comment.
func Lex(src string) ([]Token, error) {
	var tokens []Token
	for tok, err := range Tokens(src) {
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}
