package compiler

import (
	"fmt"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar:
//
//	program        = function* EOF
//	function       = "fn" IDENTIFIER "(" ")" "{" statement* "}"
//	statement      = "let" IDENTIFIER "=" expression ";"
//	               | "return" expression ";"
//	expression     = additive
//	additive       = multiplicative (("+" | "-") multiplicative)*
//	multiplicative = primary (("*" | "/") primary)*
//	primary        = NUMBER | IDENTIFIER | "(" expression ")" | matrix
//	matrix         = "[" row ("," row)* ","? "]"          nested form
//	               | "[" elements "]"                     flat form, one row
//	row            = "[" elements "]"
//	elements       = expression ("," expression)* ","?
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// Parse builds the Program for an already lexed source.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	return NewParser(tokens, rawSource).ParseProgram()
}

// controlFlowWords are identifiers that read like statements this language
// does not have. They are rejected by name so the error says so.
var controlFlowWords = map[string]bool{
	"if":    true,
	"else":  true,
	"while": true,
	"for":   true,
	"loop":  true,
}

// fail builds a ParseError at tok carrying the source line where it appears.
func (p *Parser) fail(tok Token, expected []string, format string, args ...any) error {
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}

	var msg string
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &ParseError{Token: tok, Expected: expected, Msg: msg, Snippet: snippet}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		if len(p.tokens) > 0 {
			last := p.tokens[len(p.tokens)-1]
			return Token{Type: EOF, Line: last.Line, Col: last.Col, Offset: last.Offset}
		}
		return Token{Type: EOF, Line: 1, Col: 1}
	}
	return p.tokens[p.pos]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it has type tt.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return tok, p.fail(tok, []string{tt.Describe()}, "")
	}
	return p.advance(), nil
}

// ParseProgram parses functions until EOF.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for p.peek().Type != EOF {
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

func (p *Parser) parseFunction() (*Function, error) {
	fnTok, err := p.expect(FN)
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != RPAREN {
		return nil, p.fail(tok, []string{"')'"}, "function parameters are not supported (fn %s)", name.Lexeme)
	}
	p.advance()
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	fn := &Function{Name: name.Lexeme, Pos: posOf(fnTok)}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fail(p.peek(), []string{"'let'", "'return'", "'}'"}, "")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		fn.Body = append(fn.Body, stmt)
	}
	p.advance() // }
	return fn, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()
	switch tok.Type {
	case LET:
		p.advance()
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(ASSIGN); err != nil {
			return nil, err
		}
		init, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &LetStmt{Name: name.Lexeme, Init: init, Pos: posOf(tok)}, nil

	case RETURN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ReturnStmt{Expr: expr, Pos: posOf(tok)}, nil

	case IDENTIFIER:
		if controlFlowWords[tok.Lexeme] {
			return nil, p.fail(tok, []string{"'let'", "'return'"}, "control flow is not supported: '%s'", tok.Lexeme)
		}
	}
	return nil, p.fail(tok, []string{"'let'", "'return'"}, "")
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseAdditive()
}

// parseAdditive handles + and -, left associative.
func (p *Parser) parseAdditive() (Expr, error) {
	expr, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op.Type, Left: expr, Right: right, Pos: posOf(op)}
	}
	return expr, nil
}

// parseMultiplicative handles * and /, left associative.
func (p *Parser) parseMultiplicative() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == STAR || p.peek().Type == SLASH {
		op := p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op.Type, Left: expr, Right: right, Pos: posOf(op)}
	}
	return expr, nil
}

var primaryStarts = []string{"number", "identifier", "'('", "'['"}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case NUMBER:
		p.advance()
		return &NumberLiteral{Value: tok.Value, Pos: posOf(tok)}, nil

	case IDENTIFIER:
		p.advance()
		switch next := p.peek(); next.Type {
		case LPAREN:
			return nil, p.fail(next, nil, "function calls are not supported: %s(...)", tok.Lexeme)
		case LBRACKET:
			return nil, p.fail(next, nil, "indexing is not supported: %s[...]", tok.Lexeme)
		}
		return &Identifier{Name: tok.Lexeme, Pos: posOf(tok)}, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil

	case LBRACKET:
		return p.parseMatrixLiteral()

	case MINUS:
		return nil, p.fail(tok, primaryStarts, "unary minus is not supported; write (0 - x)")
	}
	return nil, p.fail(tok, primaryStarts, "expected expression, got %s", describeToken(tok))
}

// parseMatrixLiteral decides between the nested and the flat form by the
// token after the opening bracket.
func (p *Parser) parseMatrixLiteral() (Expr, error) {
	open := p.advance() // [
	lit := &MatrixLiteral{Pos: posOf(open)}

	if p.peek().Type == RBRACKET {
		return nil, p.fail(p.peek(), nil, "empty matrix literal")
	}

	if p.peek().Type != LBRACKET {
		row, err := p.parseElements()
		if err != nil {
			return nil, err
		}
		lit.Rows = [][]Expr{row}
		return lit, nil
	}

	for {
		rowTok := p.peek()
		if rowTok.Type != LBRACKET {
			return nil, p.fail(rowTok, []string{"'['"}, "mixed nested and flat rows in matrix literal")
		}
		p.advance()
		row, err := p.parseElements()
		if err != nil {
			return nil, err
		}
		if len(lit.Rows) > 0 && len(row) != len(lit.Rows[0]) {
			return nil, p.fail(rowTok, nil, "ragged matrix literal: row %d has %d elements, row 1 has %d",
				len(lit.Rows)+1, len(row), len(lit.Rows[0]))
		}
		lit.Rows = append(lit.Rows, row)

		if p.peek().Type == COMMA {
			p.advance()
			if p.peek().Type == RBRACKET {
				break
			}
			continue
		}
		break
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	return lit, nil
}

// parseElements parses the scalar expressions of one row up to and
// including the closing bracket. The opening bracket is already consumed.
func (p *Parser) parseElements() ([]Expr, error) {
	if tok := p.peek(); tok.Type == RBRACKET {
		return nil, p.fail(tok, nil, "empty matrix row")
	}

	var row []Expr
	for {
		if tok := p.peek(); tok.Type == LBRACKET {
			return nil, p.fail(tok, nil, "mixed nested and flat rows in matrix literal")
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		row = append(row, e)

		tok := p.peek()
		if tok.Type == COMMA {
			p.advance()
			if p.peek().Type == RBRACKET {
				break
			}
			continue
		}
		if tok.Type == RBRACKET {
			break
		}
		return nil, p.fail(tok, []string{"','", "']'"}, "")
	}
	p.advance() // ]
	return row, nil
}
