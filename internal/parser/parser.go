package parser

import (
	"fmt"
	"strings"

	"github.com/phillarmonic/pf/internal/ast"
	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/lexer"
)

// Parser parses pf source code into an ast.File
type Parser struct {
	lexer *lexer.Lexer

	curToken  lexer.Token
	peekToken lexer.Token

	filename string
	source   string
	errors   []*errors.SyntaxError
	warnings []ast.Warning
}

// NewParser creates a new parser instance
func NewParser(l *lexer.Lexer, filename, source string) *Parser {
	p := &Parser{
		lexer:    l,
		filename: filename,
		source:   source,
	}

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// Parse lexes and parses source. Any syntax error fails the whole file.
func Parse(filename, source string) (*ast.File, error) {
	p := NewParser(lexer.NewLexer(source), filename, source)
	file := p.ParseFile()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return file, nil
}

// nextToken advances both curToken and peekToken
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// ParseFile parses the entire file
func (p *Parser) ParseFile() *ast.File {
	file := &ast.File{Name: p.filename}
	declared := map[string]int{}

	for p.curToken.Type != lexer.EOF {
		switch p.curToken.Type {
		case lexer.NEWLINE, lexer.COMMENT:
			p.nextToken()
		case lexer.TASK:
			task := p.parseTask()
			if task == nil {
				continue
			}
			for _, name := range append([]string{task.Name}, task.Aliases...) {
				if line, dup := declared[name]; dup {
					p.addErrorAt(task.Token, fmt.Sprintf("duplicate task %q (first defined at line %d)", name, line))
					continue
				}
				declared[name] = task.Token.Line
			}
			file.Tasks = append(file.Tasks, task)
		case lexer.INCLUDE:
			if inc := p.parseInclude(); inc != nil {
				file.Includes = append(file.Includes, inc)
			}
		case lexer.ALIAS:
			if decl := p.parseAliasDecl(); decl != nil {
				if line, dup := declared[decl.Name]; dup {
					p.addErrorAt(decl.Token, fmt.Sprintf("duplicate task %q (first defined at line %d)", decl.Name, line))
				} else {
					declared[decl.Name] = decl.Token.Line
					file.Aliases = append(file.Aliases, decl)
				}
			}
		case lexer.END:
			p.addError("unexpected `end` without an open task")
			p.skipLine()
		case lexer.ILLEGAL:
			p.addError(p.curToken.Literal)
			p.skipLine()
		default:
			p.addError(fmt.Sprintf("unexpected %s outside of a task; statements belong between `task NAME` and `end`", describeToken(p.curToken)))
			p.skipLine()
		}
	}

	for _, decl := range file.Aliases {
		if _, ok := declared[decl.Target]; !ok {
			p.warnAt(decl.Token, fmt.Sprintf("alias %q points at %q, which is not defined in this file", decl.Name, decl.Target))
		}
	}
	file.Warnings = p.warnings
	return file
}

// parseInclude parses `include PATH`
func (p *Parser) parseInclude() *ast.Include {
	inc := &ast.Include{Token: p.curToken}
	if !p.expectPeek(lexer.STRING) {
		p.skipLine()
		return nil
	}
	inc.Path = strings.TrimSpace(p.curToken.Literal)
	if inc.Path == "" {
		p.addErrorAt(inc.Token, "include requires a file path")
		p.skipLine()
		return nil
	}
	p.skipLine()
	return inc
}

// parseAliasDecl parses `alias short=task`
func (p *Parser) parseAliasDecl() *ast.AliasDecl {
	decl := &ast.AliasDecl{Token: p.curToken}
	if !p.expectPeek(lexer.IDENT) {
		p.skipLine()
		return nil
	}
	decl.Name = p.curToken.Literal
	if !p.expectPeek(lexer.ASSIGN) || !p.expectPeek(lexer.IDENT) {
		p.skipLine()
		return nil
	}
	decl.Target = p.curToken.Literal
	p.skipLine()
	return decl
}
