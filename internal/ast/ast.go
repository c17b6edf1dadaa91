// Package ast defines the syntax tree of pf task files.
package ast

import (
	"fmt"
	"strings"

	"github.com/phillarmonic/pf/internal/lexer"
)

// Node represents any node in the AST
type Node interface {
	String() string
}

// Kind enumerates the statement variants.
type Kind int

const (
	KindShell Kind = iota
	KindVerb
	KindEnv
	KindLanguage
	KindInclude
)

func (k Kind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindVerb:
		return "verb"
	case KindEnv:
		return "env"
	case KindLanguage:
		return "shell_lang"
	case KindInclude:
		return "include"
	}
	return "unknown"
}

// Statement is one executable unit. The set of implementations is closed:
// ShellCommand, Verb, EnvSet, LanguageSwitch and Include.
type Statement interface {
	Node
	Kind() Kind
	Line() int
	statementNode()
}

// Flags are the per-statement execution modifiers.
type Flags struct {
	BestEffort bool // [best-effort]: failures do not halt the task
	Local      bool // [local]: run on this machine even with a target set
}

func (f Flags) String() string {
	var out string
	if f.BestEffort {
		out += "[best-effort] "
	}
	if f.Local {
		out += "[local] "
	}
	return out
}

// File is the parse result of one source file.
type File struct {
	Name     string
	Includes []*Include
	Aliases  []*AliasDecl
	Tasks    []*Task
	Warnings []Warning
}

func (f *File) String() string {
	var out strings.Builder
	for _, inc := range f.Includes {
		out.WriteString(inc.String())
		out.WriteString("\n")
	}
	for _, a := range f.Aliases {
		out.WriteString(a.String())
		out.WriteString("\n")
	}
	for i, task := range f.Tasks {
		if i > 0 || out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(task.String())
		out.WriteString("\n")
	}
	return out.String()
}

// Task returns the task declared in this file under name.
func (f *File) Task(name string) *Task {
	for _, t := range f.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Warning is a lint finding that does not stop parsing.
type Warning struct {
	File    string
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Message)
}

// Task is a named, ordered list of statements.
type Task struct {
	Token       lexer.Token
	Name        string
	Aliases     []string
	Description string
	Statements  []Statement
	SourceFile  string
}

func (t *Task) String() string {
	var out strings.Builder
	out.WriteString("task " + t.Name)
	if len(t.Aliases) > 0 {
		parts := make([]string, len(t.Aliases))
		for i, a := range t.Aliases {
			parts[i] = "alias " + a
		}
		out.WriteString(" [" + strings.Join(parts, "|") + "]")
	}
	out.WriteString("\n")
	if t.Description != "" {
		out.WriteString(fmt.Sprintf("  describe \"%s\"\n", t.Description))
	}
	for _, stmt := range t.Statements {
		for _, line := range strings.Split(stmt.String(), "\n") {
			if line == "" {
				out.WriteString("\n")
				continue
			}
			out.WriteString("  " + line + "\n")
		}
	}
	out.WriteString("end")
	return out.String()
}

// Params returns the distinct parameter names the task references.
func (t *Task) Params() []string {
	var names []string
	seen := map[string]bool{}
	for _, stmt := range t.Statements {
		var refs []string
		switch s := stmt.(type) {
		case *ShellCommand:
			refs = s.Params
		case *Verb:
			refs = s.Params
		case *EnvSet:
			refs = s.Params
		}
		for _, name := range refs {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Summary returns a one-line rendering of the first statement.
func (t *Task) Summary() string {
	if len(t.Statements) == 0 {
		return ""
	}
	first, _, _ := strings.Cut(t.Statements[0].String(), "\n")
	return first
}

// ShellCommand is a line (or heredoc block) of code in the current or
// overridden language.
type ShellCommand struct {
	Token    lexer.Token
	Text     string
	Language string   // [lang:x] override, empty for the task default
	File     string   // @path source instead of inline text
	Args     []string // arguments after --
	Heredoc  string   // delimiter when written as a heredoc block
	Raw      bool     // quoted heredoc delimiter: no parameter substitution
	Flags    Flags
	Params   []string
}

func (s *ShellCommand) statementNode() {}
func (s *ShellCommand) Kind() Kind     { return KindShell }
func (s *ShellCommand) Line() int      { return s.Token.Line }

func (s *ShellCommand) String() string {
	prefix := s.Flags.String()
	if s.Language != "" {
		prefix += "[lang:" + s.Language + "] "
	}
	switch {
	case s.File != "":
		out := prefix + "@" + s.File
		if len(s.Args) > 0 {
			out += " -- " + strings.Join(quoteWords(s.Args), " ")
		}
		return out
	case s.Heredoc != "":
		delim := s.Heredoc
		if s.Raw {
			delim = "'" + delim + "'"
		}
		if prefix == "" {
			prefix = "shell "
		}
		return fmt.Sprintf("%s<< %s\n%s\n%s", prefix, delim, s.Text, s.Heredoc)
	}
	if prefix == "" && needsShellKeyword(s.Text) {
		prefix = "shell "
	}
	return prefix + s.Text
}

// needsShellKeyword reports whether text would be read back as something
// other than a shell command without the explicit `shell` head.
func needsShellKeyword(text string) bool {
	head, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	switch lexer.LookupIdent(head) {
	case lexer.IDENT:
		return strings.HasPrefix(head, "#") || strings.HasPrefix(head, "[") || strings.HasPrefix(head, "@")
	case lexer.SHELL:
		return false
	}
	return true
}

// Verb is a structured operation such as `packages install nginx`.
type Verb struct {
	Token  lexer.Token
	Name   string
	Args   []string
	Flags  Flags
	Params []string
}

func (v *Verb) statementNode() {}
func (v *Verb) Kind() Kind     { return KindVerb }
func (v *Verb) Line() int      { return v.Token.Line }

func (v *Verb) String() string {
	out := v.Flags.String() + v.Name
	if len(v.Args) > 0 {
		out += " " + strings.Join(quoteWords(v.Args), " ")
	}
	return out
}

// EnvSet sets a variable for the statements that follow it.
type EnvSet struct {
	Token  lexer.Token
	Key    string
	Value  string
	Params []string
}

func (e *EnvSet) statementNode() {}
func (e *EnvSet) Kind() Kind     { return KindEnv }
func (e *EnvSet) Line() int      { return e.Token.Line }

func (e *EnvSet) String() string {
	return "env " + e.Key + "=" + quoteWord(e.Value)
}

// LanguageSwitch changes the default language of later bare statements.
type LanguageSwitch struct {
	Token    lexer.Token
	Language string
}

func (l *LanguageSwitch) statementNode() {}
func (l *LanguageSwitch) Kind() Kind     { return KindLanguage }
func (l *LanguageSwitch) Line() int      { return l.Token.Line }

func (l *LanguageSwitch) String() string {
	return "shell_lang " + l.Language
}

// Include pulls another source file into a child namespace. Only valid at
// file scope.
type Include struct {
	Token lexer.Token
	Path  string
}

func (i *Include) statementNode() {}
func (i *Include) Kind() Kind     { return KindInclude }
func (i *Include) Line() int      { return i.Token.Line }

func (i *Include) String() string {
	return "include " + quoteWord(i.Path)
}

// AliasDecl is a file-scope `alias short=task`.
type AliasDecl struct {
	Token  lexer.Token
	Name   string
	Target string
}

func (a *AliasDecl) String() string {
	return "alias " + a.Name + "=" + a.Target
}

func quoteWords(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = quoteWord(w)
	}
	return out
}

func quoteWord(w string) string {
	if w == "" {
		return `""`
	}
	if !strings.ContainsAny(w, " \t\"'\\#") {
		return w
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(w) + `"`
}
