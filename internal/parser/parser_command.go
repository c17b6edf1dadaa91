package parser

import (
	"fmt"
	"strings"

	"github.com/phillarmonic/pf/internal/ast"
	"github.com/phillarmonic/pf/internal/lexer"
)

// parseCommand parses an executable line: optional [best-effort]/[local]
// and [lang:x] tags, an optional `shell` head, then a verb, an @file
// reference, a heredoc block or plain shell text.
func (p *Parser) parseCommand(envNames map[string]bool) ast.Statement {
	start := p.curToken
	var flags ast.Flags
	var lang string

tags:
	for {
		switch p.curToken.Type {
		case lexer.FLAG_TAG:
			switch p.curToken.Literal {
			case "best-effort":
				flags.BestEffort = true
			case "local":
				flags.Local = true
			}
		case lexer.LANG_TAG:
			if lang != "" {
				p.addError("only one [lang:x] tag is allowed per statement")
			}
			lang = strings.ToLower(p.curToken.Literal)
		case lexer.SHELL:
		default:
			break tags
		}
		p.nextToken()
	}

	switch p.curToken.Type {
	case lexer.VERB:
		if lang != "" {
			p.addErrorAt(start, fmt.Sprintf("[lang:%s] cannot be applied to the %s verb", lang, p.curToken.Literal))
		}
		return p.parseVerb(flags, envNames)
	case lexer.FILE_REF:
		return p.parseFileRef(start, flags, lang, envNames)
	case lexer.HEREDOC_START:
		cmd := &ast.ShellCommand{Token: start, Language: lang, Flags: flags, Heredoc: p.curToken.Literal, Raw: p.curToken.Quoted}
		body, ok := p.readHeredoc()
		if !ok {
			return nil
		}
		cmd.Text = body
		if !cmd.Raw {
			cmd.Params = paramsOf(body, envNames)
		}
		return cmd
	case lexer.TEXT, lexer.PARAM_REF:
		return p.parseShellText(start, flags, lang, envNames)
	case lexer.ILLEGAL:
		p.addError(p.curToken.Literal)
		p.skipLine()
		return nil
	default:
		p.addErrorAt(start, fmt.Sprintf("expected a command, got %s", describeToken(p.curToken)))
		p.skipLine()
		return nil
	}
}

func (p *Parser) parseShellText(start lexer.Token, flags ast.Flags, lang string, envNames map[string]bool) ast.Statement {
	cmd := &ast.ShellCommand{Token: start, Language: lang, Flags: flags}

	var text strings.Builder
	for p.curToken.Type == lexer.TEXT || p.curToken.Type == lexer.PARAM_REF {
		text.WriteString(p.curToken.Literal)
		p.nextToken()
	}
	cmd.Text = text.String()

	// A shell heredoc such as `cat <<EOF > out` keeps its body and
	// terminator inside the one command.
	if p.curToken.Type == lexer.HEREDOC_START {
		delim, quoted := p.curToken.Literal, p.curToken.Quoted
		body, ok := p.readHeredoc()
		if !ok {
			return nil
		}
		cmd.Text += "\n" + body + "\n" + delim
		cmd.Raw = quoted
	} else {
		p.skipLine()
	}

	if !cmd.Raw {
		cmd.Params = paramsOf(cmd.Text, envNames)
	}
	return cmd
}

func (p *Parser) parseFileRef(start lexer.Token, flags ast.Flags, lang string, envNames map[string]bool) ast.Statement {
	cmd := &ast.ShellCommand{Token: start, Language: lang, Flags: flags, File: p.curToken.Literal}
	p.nextToken()
	if p.curToken.Type == lexer.DASHDASH {
		p.nextToken()
	}
	for p.curToken.Type == lexer.WORD || p.curToken.Type == lexer.DASHDASH {
		cmd.Args = append(cmd.Args, p.curToken.Literal)
		cmd.Params = mergeNames(cmd.Params, paramsOf(p.curToken.Literal, envNames))
		p.nextToken()
	}
	if p.curToken.Type == lexer.ILLEGAL {
		p.addError(p.curToken.Literal)
	}
	p.skipLine()
	return cmd
}

// readHeredoc consumes HEREDOC_START, BODY and END and returns the body.
func (p *Parser) readHeredoc() (string, bool) {
	if !p.expectPeek(lexer.HEREDOC_BODY) {
		p.skipLine()
		return "", false
	}
	body := p.curToken.Literal
	if !p.expectPeek(lexer.HEREDOC_END) {
		p.skipLine()
		return "", false
	}
	p.skipLine()
	return body, true
}

func (p *Parser) parseVerb(flags ast.Flags, envNames map[string]bool) *ast.Verb {
	verb := &ast.Verb{Token: p.curToken, Name: p.curToken.Literal, Flags: flags}
	p.nextToken()
	for p.curToken.Type == lexer.WORD || p.curToken.Type == lexer.DASHDASH {
		verb.Args = append(verb.Args, p.curToken.Literal)
		verb.Params = mergeNames(verb.Params, paramsOf(p.curToken.Literal, envNames))
		p.nextToken()
	}
	if p.curToken.Type == lexer.ILLEGAL {
		p.addError(p.curToken.Literal)
	}
	p.skipLine()
	return verb
}

// paramsOf lists the parameter references in text that are not variables
// declared by an earlier env statement.
func paramsOf(text string, envNames map[string]bool) []string {
	var names []string
	for _, name := range lexer.ParamNames(text) {
		if !envNames[name] {
			names = append(names, name)
		}
	}
	return names
}

func mergeNames(dst, src []string) []string {
	for _, name := range src {
		found := false
		for _, have := range dst {
			if have == name {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, name)
		}
	}
	return dst
}
