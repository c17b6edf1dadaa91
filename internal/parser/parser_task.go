package parser

import (
	"fmt"
	"strings"

	"github.com/phillarmonic/pf/internal/ast"
	"github.com/phillarmonic/pf/internal/lexer"
)

// parseTask parses `task NAME [alias a|alias b]` through the matching `end`.
func (p *Parser) parseTask() *ast.Task {
	task := &ast.Task{Token: p.curToken, SourceFile: p.filename}

	switch p.peekToken.Type {
	case lexer.IDENT, lexer.STRING:
		p.nextToken()
		task.Name = strings.TrimSpace(p.curToken.Literal)
	default:
		p.addErrorAt(p.peekToken, fmt.Sprintf("expected task name after `task`, got %s", describeToken(p.peekToken)))
		p.skipBlock()
		return nil
	}
	if task.Name == "" || strings.ContainsAny(task.Name, " \t") {
		p.addError(fmt.Sprintf("invalid task name %q", task.Name))
		p.skipBlock()
		return nil
	}

	p.nextToken()
	if !p.parseTaskHeader(task) {
		p.skipBlock()
		return nil
	}
	p.skipLine()

	if !p.parseTaskBody(task) {
		return nil
	}
	if task.Description == "" {
		p.warnAt(task.Token, fmt.Sprintf("task `%s` has no describe", task.Name))
	}
	return task
}

func (p *Parser) parseTaskHeader(task *ast.Task) bool {
	for p.curToken.Type != lexer.NEWLINE && p.curToken.Type != lexer.EOF {
		switch p.curToken.Type {
		case lexer.LBRACKET:
			if !p.parseAliasGroup(task) {
				return false
			}
			p.nextToken()
		case lexer.ILLEGAL:
			p.addError(p.curToken.Literal)
			return false
		default:
			p.addError(fmt.Sprintf("unexpected %s in header of task `%s`; aliases are written as [alias a|alias b]",
				describeToken(p.curToken), task.Name))
			return false
		}
	}
	return true
}

// parseAliasGroup parses `[alias a|alias b]`, leaving curToken on `]`.
func (p *Parser) parseAliasGroup(task *ast.Task) bool {
	for {
		if !p.expectPeek(lexer.ALIAS) || !p.expectPeek(lexer.IDENT) {
			return false
		}
		task.Aliases = append(task.Aliases, p.curToken.Literal)

		switch p.peekToken.Type {
		case lexer.PIPE:
			p.nextToken()
		case lexer.RBRACKET:
			p.nextToken()
			return true
		default:
			p.peekError(lexer.RBRACKET)
			return false
		}
	}
}

func (p *Parser) parseTaskBody(task *ast.Task) bool {
	envNames := map[string]bool{}

	for {
		switch p.curToken.Type {
		case lexer.END:
			if p.peekToken.Type == lexer.ILLEGAL {
				p.addErrorAt(p.peekToken, p.peekToken.Literal)
			}
			p.skipLine()
			return true
		case lexer.EOF:
			p.addErrorAt(p.curToken, fmt.Sprintf("expected `end` to close task `%s` opened at line %d",
				task.Name, task.Token.Line))
			return false
		case lexer.TASK:
			p.addErrorAt(p.curToken, fmt.Sprintf("expected `end` to close task `%s` opened at line %d before the next task",
				task.Name, task.Token.Line))
			return false
		case lexer.NEWLINE, lexer.COMMENT:
			p.nextToken()
		case lexer.INCLUDE:
			p.addError(fmt.Sprintf("include is only valid at file scope, not inside task `%s`", task.Name))
			p.skipLine()
		case lexer.DESCRIBE:
			p.parseDescribe(task)
		case lexer.ENV:
			task.Statements = append(task.Statements, p.parseEnv(envNames)...)
		case lexer.SHELL_LANG:
			if stmt := p.parseLanguageSwitch(); stmt != nil {
				task.Statements = append(task.Statements, stmt)
			}
		case lexer.ALIAS:
			// `alias ll=ls` inside a task is an ordinary shell line.
			if stmt := p.parseAliasAsShell(); stmt != nil {
				task.Statements = append(task.Statements, stmt)
			}
		case lexer.ILLEGAL:
			p.addError(p.curToken.Literal)
			p.skipLine()
		default:
			if stmt := p.parseCommand(envNames); stmt != nil {
				task.Statements = append(task.Statements, stmt)
			}
		}
	}
}

func (p *Parser) parseDescribe(task *ast.Task) {
	tok := p.curToken
	if !p.expectPeek(lexer.STRING) {
		p.skipLine()
		return
	}
	switch {
	case len(task.Statements) > 0:
		p.addErrorAt(tok, fmt.Sprintf("describe must come before the statements of task `%s`", task.Name))
	case task.Description != "":
		p.addErrorAt(tok, fmt.Sprintf("task `%s` already has a describe", task.Name))
	default:
		task.Description = strings.TrimSpace(p.curToken.Literal)
	}
	p.skipLine()
}

func (p *Parser) parseEnv(envNames map[string]bool) []ast.Statement {
	var stmts []ast.Statement
	for p.peekToken.Type == lexer.ENV_ASSIGN {
		p.nextToken()
		key, value, _ := strings.Cut(p.curToken.Literal, "=")
		stmts = append(stmts, &ast.EnvSet{
			Token:  p.curToken,
			Key:    key,
			Value:  value,
			Params: paramsOf(value, envNames),
		})
		envNames[key] = true
	}
	p.skipLine()
	return stmts
}

func (p *Parser) parseLanguageSwitch() *ast.LanguageSwitch {
	stmt := &ast.LanguageSwitch{Token: p.curToken}
	if !p.expectPeek(lexer.IDENT) {
		p.skipLine()
		return nil
	}
	stmt.Language = strings.ToLower(strings.TrimSpace(p.curToken.Literal))
	if stmt.Language == "" {
		p.addErrorAt(stmt.Token, "shell_lang requires a language name")
		p.skipLine()
		return nil
	}
	p.skipLine()
	return stmt
}

func (p *Parser) parseAliasAsShell() *ast.ShellCommand {
	cmd := &ast.ShellCommand{Token: p.curToken}
	var parts []string
	for p.curToken.Type != lexer.NEWLINE && p.curToken.Type != lexer.EOF {
		parts = append(parts, p.curToken.Literal)
		p.nextToken()
	}
	// parts is: alias NAME = TARGET
	if len(parts) == 4 {
		cmd.Text = parts[0] + " " + parts[1] + parts[2] + parts[3]
	} else {
		cmd.Text = strings.Join(parts, " ")
	}
	p.skipLine()
	return cmd
}

// skipBlock discards the rest of a task whose header could not be parsed,
// through its `end` line or up to the next task header.
func (p *Parser) skipBlock() {
	p.skipLine()
	for {
		switch p.curToken.Type {
		case lexer.EOF, lexer.TASK:
			return
		case lexer.END:
			p.skipLine()
			return
		default:
			p.nextToken()
		}
	}
}
