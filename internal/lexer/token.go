package lexer

import "fmt"

// TokenType represents the type of a token
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF
	NEWLINE
	COMMENT

	// Literals
	IDENT      // build-web
	STRING     // "quoted words" or the rest of a describe line
	WORD       // verb argument, quotes removed
	TEXT       // raw shell text between parameter references
	PARAM_REF  // $name or ${name}
	ENV_ASSIGN // KEY=value
	LANG_TAG   // [lang:python]
	FLAG_TAG   // [best-effort], [local]
	FILE_REF   // @scripts/setup.py

	// Heredoc mode
	HEREDOC_START // << DELIM
	HEREDOC_BODY
	HEREDOC_END

	// Punctuation
	LBRACKET // [
	RBRACKET // ]
	PIPE     // |
	ASSIGN   // =
	DASHDASH // --

	// Keywords
	TASK       // task
	END        // end
	DESCRIBE   // describe
	INCLUDE    // include
	ENV        // env
	ALIAS      // alias
	SHELL_LANG // shell_lang
	SHELL      // shell
	VERB       // packages, service, directory, copy, sync, build helpers
)

var tokenNames = map[TokenType]string{
	ILLEGAL:       "ILLEGAL",
	EOF:           "EOF",
	NEWLINE:       "NEWLINE",
	COMMENT:       "COMMENT",
	IDENT:         "IDENT",
	STRING:        "STRING",
	WORD:          "WORD",
	TEXT:          "TEXT",
	PARAM_REF:     "PARAM_REF",
	ENV_ASSIGN:    "ENV_ASSIGN",
	LANG_TAG:      "LANG_TAG",
	FLAG_TAG:      "FLAG_TAG",
	FILE_REF:      "FILE_REF",
	HEREDOC_START: "HEREDOC_START",
	HEREDOC_BODY:  "HEREDOC_BODY",
	HEREDOC_END:   "HEREDOC_END",
	LBRACKET:      "LBRACKET",
	RBRACKET:      "RBRACKET",
	PIPE:          "PIPE",
	ASSIGN:        "ASSIGN",
	DASHDASH:      "DASHDASH",
	TASK:          "TASK",
	END:           "END",
	DESCRIBE:      "DESCRIBE",
	INCLUDE:       "INCLUDE",
	ENV:           "ENV",
	ALIAS:         "ALIAS",
	SHELL_LANG:    "SHELL_LANG",
	SHELL:         "SHELL",
	VERB:          "VERB",
}

// String returns a string representation of the token type
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token represents a single token
type Token struct {
	Type     TokenType
	Literal  string
	Line     int
	Column   int
	Position int

	// Quoted is set on heredoc tokens whose delimiter was quoted and on
	// STRING/WORD tokens that came from a quoted source word.
	Quoted bool
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("Token{Type: %s, Literal: %q, Line: %d, Column: %d}",
		t.Type, t.Literal, t.Line, t.Column)
}

// keywords are recognized only as the first word of a line.
var keywords = map[string]TokenType{
	"task":       TASK,
	"end":        END,
	"describe":   DESCRIBE,
	"include":    INCLUDE,
	"env":        ENV,
	"alias":      ALIAS,
	"shell_lang": SHELL_LANG,
	"shell":      SHELL,
}

// Verbs is the closed set of structured operation heads.
var Verbs = map[string]bool{
	"packages":  true,
	"service":   true,
	"directory": true,
	"copy":      true,
	"sync":      true,
	"makefile":  true,
	"cmake":     true,
	"meson":     true,
	"cargo":     true,
	"go_build":  true,
	"configure": true,
	"justfile":  true,
	"autobuild": true,
}

// LookupIdent classifies the first word of a line.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	if Verbs[ident] {
		return VERB
	}
	return IDENT
}
