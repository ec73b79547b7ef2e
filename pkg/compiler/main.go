// Package compiler provides the MatrixScript lexer, parser, shape inference
// and code generator that targets the matscript register machine.
//
// Pipeline: source → Lex → Parse → fold constants → Infer → Generate → assembly text
package compiler
