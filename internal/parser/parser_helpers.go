package parser

import (
	"fmt"

	"github.com/phillarmonic/pf/internal/ast"
	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/lexer"
)

// expectPeek advances when the next token has type t
func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekToken.Type == t {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t lexer.TokenType) {
	if p.peekToken.Type == lexer.ILLEGAL {
		p.addErrorAt(p.peekToken, p.peekToken.Literal)
		return
	}
	p.addErrorAt(p.peekToken, fmt.Sprintf("expected %s, got %s", t, describeToken(p.peekToken)))
}

func (p *Parser) addError(msg string) {
	p.addErrorAt(p.curToken, msg)
}

func (p *Parser) addErrorAt(tok lexer.Token, msg string) {
	p.errors = append(p.errors, &errors.SyntaxError{
		Message:  msg,
		Filename: p.filename,
		Line:     tok.Line,
		Column:   tok.Column,
		Source:   p.source,
	})
}

func (p *Parser) warnAt(tok lexer.Token, msg string) {
	p.warnings = append(p.warnings, ast.Warning{File: p.filename, Line: tok.Line, Message: msg})
}

// skipLine advances past the next NEWLINE
func (p *Parser) skipLine() {
	for p.curToken.Type != lexer.NEWLINE && p.curToken.Type != lexer.EOF {
		p.nextToken()
	}
	if p.curToken.Type == lexer.NEWLINE {
		p.nextToken()
	}
}

// Errors returns the syntax errors found so far
func (p *Parser) Errors() []*errors.SyntaxError {
	return p.errors
}

// Err returns the errors as a single error value, or nil.
func (p *Parser) Err() error {
	if len(p.errors) == 0 {
		return nil
	}
	return &errors.SyntaxErrorList{Errors: p.errors, Filename: p.filename}
}

// Warnings returns lint findings
func (p *Parser) Warnings() []ast.Warning {
	return p.warnings
}

func describeToken(tok lexer.Token) string {
	switch tok.Type {
	case lexer.NEWLINE:
		return "end of line"
	case lexer.EOF:
		return "end of file"
	case lexer.TEXT, lexer.IDENT, lexer.WORD, lexer.STRING:
		return fmt.Sprintf("%q", tok.Literal)
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
}
