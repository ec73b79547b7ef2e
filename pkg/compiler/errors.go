package compiler

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrLex matches every *LexError.
	ErrLex = errors.New("lex error")

	// ErrParse matches every *ParseError.
	ErrParse = errors.New("parse error")

	// ErrCompile matches every *CompileError.
	ErrCompile = errors.New("compile error")
)

// LexError reports a character the lexer cannot start a token with, or a
// malformed lexical unit (unterminated comment, unrepresentable number).
type LexError struct {
	Char   rune
	Offset int // byte offset of Char
	Line   int
	Col    int
	Msg    string // set for errors that are not about a single character
}

func (e *LexError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("lex error at %d:%d: %s", e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("lex error at %d:%d: unexpected character %q (offset %d)", e.Line, e.Col, e.Char, e.Offset)
}

func (e *LexError) Is(target error) bool { return target == ErrLex }

// ParseError reports the token at which parsing stopped.
type ParseError struct {
	Token    Token
	Expected []string // alternatives that would have been accepted
	Msg      string
	Snippet  string // trimmed source line containing Token
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = fmt.Sprintf("expected %s, got %s", strings.Join(e.Expected, " or "), describeToken(e.Token))
	}
	return fmt.Sprintf("line %d: %s\n  |> %s", e.Token.Line, msg, e.Snippet)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func describeToken(tok Token) string {
	switch tok.Type {
	case EOF:
		return "end of input"
	case IDENTIFIER, NUMBER:
		return fmt.Sprintf("%s %q", strings.ToLower(tok.Type.String()), tok.Lexeme)
	}
	return fmt.Sprintf("'%s'", tok.Lexeme)
}

// CompileErrorKind classifies semantic errors found after parsing.
type CompileErrorKind int

const (
	UnknownReturnShape CompileErrorKind = iota
	UnboundIdentifier
	ShapeMismatch
	UnsupportedOperands
	InvalidElement
	DuplicateFunction
)

var compileErrorKinds = [...]string{
	UnknownReturnShape:  "unknown return shape",
	UnboundIdentifier:   "unbound identifier",
	ShapeMismatch:       "shape mismatch",
	UnsupportedOperands: "unsupported operands",
	InvalidElement:      "invalid matrix element",
	DuplicateFunction:   "duplicate function",
}

func (k CompileErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(compileErrorKinds) {
		return compileErrorKinds[k]
	}
	return fmt.Sprintf("CompileErrorKind(%d)", int(k))
}

// CompileError reports a semantic error in one function.
type CompileError struct {
	Kind     CompileErrorKind
	Function string
	Name     string // offending identifier, when there is one
	Pos      Pos
	Msg      string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "compile error in fn %s", e.Function)
	if e.Pos.Line > 0 {
		fmt.Fprintf(&sb, " at %s", e.Pos)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.String())
	if e.Name != "" {
		fmt.Fprintf(&sb, " '%s'", e.Name)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	return sb.String()
}

func (e *CompileError) Is(target error) bool { return target == ErrCompile }
