package lexer

import (
	"fmt"
	"strings"
	"unicode"
)

type lexState int

const (
	stateLine lexState = iota
	stateHeredoc
)

type heredocState struct {
	delim     string
	quoted    bool
	startLine int
}

// Lexer tokenizes pf task files one line at a time. Heredoc blocks switch
// the lexer into a dedicated state that ends only at the delimiter line.
type Lexer struct {
	input    string
	position int // offset of the next unread line
	line     int // number of the next unread line
	state    lexState
	heredoc  heredocState
	queue    []Token
	done     bool
}

// NewLexer creates a new lexer instance
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: strings.ReplaceAll(input, "\r\n", "\n"),
		line:  1,
	}
}

// NextToken returns the next token
func (l *Lexer) NextToken() Token {
	for len(l.queue) == 0 {
		if l.done {
			return Token{Type: EOF, Line: l.line, Position: len(l.input)}
		}
		switch l.state {
		case stateHeredoc:
			l.scanHeredoc()
		default:
			l.scanLine()
		}
	}
	tok := l.queue[0]
	l.queue = l.queue[1:]
	return tok
}

// AllTokens returns every token up to and including EOF
func (l *Lexer) AllTokens() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

// readLine returns the next physical line without its newline.
func (l *Lexer) readLine() (text string, lineNo, offset int, ok bool) {
	if l.position >= len(l.input) {
		return "", l.line, l.position, false
	}
	offset = l.position
	end := strings.IndexByte(l.input[offset:], '\n')
	if end < 0 {
		text = l.input[offset:]
		l.position = len(l.input)
	} else {
		text = l.input[offset : offset+end]
		l.position = offset + end + 1
	}
	lineNo = l.line
	l.line++
	return text, lineNo, offset, true
}

func (l *Lexer) emit(typ TokenType, literal string, line, col, pos int) {
	l.queue = append(l.queue, Token{Type: typ, Literal: literal, Line: line, Column: col, Position: pos})
}

func (l *Lexer) emitQuoted(typ TokenType, literal string, quoted bool, line, col, pos int) {
	l.queue = append(l.queue, Token{Type: typ, Literal: literal, Line: line, Column: col, Position: pos, Quoted: quoted})
}

func (l *Lexer) scanLine() {
	raw, lineNo, offset, ok := l.readLine()
	if !ok {
		l.emit(EOF, "", l.line, 1, len(l.input))
		l.done = true
		return
	}

	text := strings.TrimRightFunc(raw, unicode.IsSpace)
	indent := len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	text = text[indent:]
	col := indent + 1
	pos := offset + indent

	if text == "" {
		l.emit(NEWLINE, "\n", lineNo, col, pos)
		return
	}
	if strings.HasPrefix(text, "#") {
		l.emit(COMMENT, text, lineNo, col, pos)
		l.emit(NEWLINE, "\n", lineNo, col+len(text), pos+len(text))
		return
	}

	head, rest := splitHead(text)
	restCol := col + (len(text) - len(rest))
	restPos := pos + (len(text) - len(rest))

	switch typ := LookupIdent(head); typ {
	case TASK:
		l.emit(TASK, head, lineNo, col, pos)
		l.lexHeader(rest, lineNo, restCol, restPos)
	case END:
		l.emit(END, head, lineNo, col, pos)
		if rest != "" && !strings.HasPrefix(rest, "#") {
			l.emit(ILLEGAL, fmt.Sprintf("unexpected %q after end", rest), lineNo, restCol, restPos)
		}
	case DESCRIBE, INCLUDE:
		l.emit(typ, head, lineNo, col, pos)
		value, quoted := unquote(rest)
		l.emitQuoted(STRING, value, quoted, lineNo, restCol, restPos)
	case SHELL_LANG:
		l.emit(SHELL_LANG, head, lineNo, col, pos)
		l.emit(IDENT, rest, lineNo, restCol, restPos)
	case ENV:
		if !l.lexEnv(head, rest, lineNo, col, pos, restCol, restPos) {
			l.lexCommand(text, lineNo, col, pos)
			return
		}
	case ALIAS:
		if !l.lexAlias(head, rest, lineNo, col, pos, restCol, restPos) {
			l.lexCommand(text, lineNo, col, pos)
			return
		}
	case SHELL:
		l.emit(SHELL, head, lineNo, col, pos)
		l.lexCommand(rest, lineNo, restCol, restPos)
		return
	case VERB:
		l.emit(VERB, head, lineNo, col, pos)
		l.lexWords(rest, lineNo, restCol, restPos)
	default:
		l.lexCommand(text, lineNo, col, pos)
		return
	}
	l.emit(NEWLINE, "\n", lineNo, col+len(text), pos+len(text))
}

// lexHeader tokenizes the remainder of a task line: NAME [alias a|alias b]
func (l *Lexer) lexHeader(rest string, line, col, pos int) {
	i := 0
	for i < len(rest) {
		ch := rest[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch == '#':
			return
		case ch == '[':
			l.emit(LBRACKET, "[", line, col+i, pos+i)
			i++
		case ch == ']':
			l.emit(RBRACKET, "]", line, col+i, pos+i)
			i++
		case ch == '|':
			l.emit(PIPE, "|", line, col+i, pos+i)
			i++
		case ch == '"' || ch == '\'':
			end := strings.IndexByte(rest[i+1:], ch)
			if end < 0 {
				l.emit(ILLEGAL, "unterminated string in task header", line, col+i, pos+i)
				return
			}
			l.emitQuoted(STRING, rest[i+1:i+1+end], true, line, col+i, pos+i)
			i += end + 2
		default:
			start := i
			for i < len(rest) && !strings.ContainsRune(" \t[]|", rune(rest[i])) {
				i++
			}
			word := rest[start:i]
			if word == "alias" {
				l.emit(ALIAS, word, line, col+start, pos+start)
				continue
			}
			l.emit(IDENT, strings.TrimSuffix(word, ":"), line, col+start, pos+start)
		}
	}
}

// lexEnv reports false when the line is a plain `env` shell invocation.
func (l *Lexer) lexEnv(head, rest string, line, col, pos, restCol, restPos int) bool {
	words, err := splitWords(rest)
	if err != nil || len(words) == 0 {
		return false
	}
	for _, w := range words {
		key, _, ok := strings.Cut(w.text, "=")
		if !ok || !isIdentifier(key) {
			return false
		}
	}
	l.emit(ENV, head, line, col, pos)
	for _, w := range words {
		l.emitQuoted(ENV_ASSIGN, w.text, w.quoted, line, restCol+w.offset, restPos+w.offset)
	}
	return true
}

// lexAlias accepts `alias short=task` and `alias short task`.
func (l *Lexer) lexAlias(head, rest string, line, col, pos, restCol, restPos int) bool {
	words, err := splitWords(rest)
	if err != nil {
		return false
	}
	var name, target string
	switch len(words) {
	case 1:
		var ok bool
		name, target, ok = strings.Cut(words[0].text, "=")
		if !ok {
			return false
		}
	case 2:
		name, target = words[0].text, words[1].text
	case 3:
		if words[1].text != "=" {
			return false
		}
		name, target = words[0].text, words[2].text
	default:
		return false
	}
	if !isTaskName(name) || !isTaskName(target) {
		return false
	}
	l.emit(ALIAS, head, line, col, pos)
	l.emit(IDENT, name, line, restCol, restPos)
	l.emit(ASSIGN, "=", line, restCol+len(name), restPos+len(name))
	l.emit(IDENT, target, line, restCol+len(rest)-len(target), restPos+len(rest)-len(target))
	return true
}

func (l *Lexer) lexWords(rest string, line, col, pos int) {
	words, err := splitWords(rest)
	if err != nil {
		l.emit(ILLEGAL, err.Error(), line, col, pos)
		return
	}
	for _, w := range words {
		if w.text == "--" && !w.quoted {
			l.emit(DASHDASH, "--", line, col+w.offset, pos+w.offset)
			continue
		}
		l.emitQuoted(WORD, w.text, w.quoted, line, col+w.offset, pos+w.offset)
	}
}

// lexCommand tokenizes an executable line: optional tags, then a file
// reference, a heredoc opener or shell text with parameter references.
func (l *Lexer) lexCommand(text string, line, col, pos int) {
	tagged := false
	for {
		tag, rest, ok := leadingTag(text)
		if !ok {
			break
		}
		if lang, isLang := strings.CutPrefix(tag, "lang:"); isLang {
			l.emit(LANG_TAG, lang, line, col, pos)
		} else {
			l.emit(FLAG_TAG, tag, line, col, pos)
		}
		trimmed := strings.TrimLeft(rest, " \t")
		col += len(text) - len(trimmed)
		pos += len(text) - len(trimmed)
		text = trimmed
		tagged = true
	}

	if tagged {
		head, rest := splitHead(text)
		off := len(text) - len(rest)
		switch LookupIdent(head) {
		case VERB:
			l.emit(VERB, head, line, col, pos)
			l.lexWords(rest, line, col+off, pos+off)
			l.emit(NEWLINE, "\n", line, col+len(text), pos+len(text))
			return
		case SHELL:
			l.emit(SHELL, head, line, col, pos)
			l.lexCommand(rest, line, col+off, pos+off)
			return
		}
	}

	if strings.HasPrefix(text, "@") && len(text) > 1 {
		ref, args, _ := strings.Cut(text[1:], " ")
		l.emit(FILE_REF, ref, line, col, pos)
		if args = strings.TrimSpace(args); args != "" {
			off := len(text) - len(args)
			l.lexWords(args, line, col+off, pos+off)
		}
		l.emit(NEWLINE, "\n", line, col+len(text), pos+len(text))
		return
	}

	if prefix, trailing, hd, ok := splitHeredoc(text); ok {
		if prefix != "" || trailing != "" {
			l.lexText(text, line, col, pos)
		}
		hd.startLine = line
		tok := Token{Type: HEREDOC_START, Literal: hd.delim, Line: line, Column: col + len(prefix), Position: pos + len(prefix), Quoted: hd.quoted}
		l.queue = append(l.queue, tok)
		l.heredoc = hd
		l.state = stateHeredoc
		return
	}

	if text != "" {
		l.lexText(text, line, col, pos)
	}
	l.emit(NEWLINE, "\n", line, col+len(text), pos+len(text))
}

// lexText splits shell text into TEXT and PARAM_REF tokens. Concatenating
// the literals reproduces the input.
func (l *Lexer) lexText(text string, line, col, pos int) {
	off := 0
	for _, seg := range ScanParams(text) {
		if seg.Param {
			l.emit(PARAM_REF, seg.Text, line, col+off, pos+off)
		} else {
			l.emit(TEXT, seg.Text, line, col+off, pos+off)
		}
		off += len(seg.Text)
	}
}

func (l *Lexer) scanHeredoc() {
	var body []string
	for {
		raw, lineNo, offset, ok := l.readLine()
		if !ok {
			l.emit(HEREDOC_BODY, dedent(body), l.line, 1, len(l.input))
			l.emit(ILLEGAL, fmt.Sprintf("unterminated heredoc: expected %q to close the block opened at line %d",
				l.heredoc.delim, l.heredoc.startLine), l.line, 1, len(l.input))
			l.state = stateLine
			return
		}
		if strings.TrimSpace(raw) == l.heredoc.delim {
			l.emitQuoted(HEREDOC_BODY, dedent(body), l.heredoc.quoted, l.heredoc.startLine+1, 1, offset)
			col := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace)) + 1
			l.emit(HEREDOC_END, l.heredoc.delim, lineNo, col, offset+col-1)
			l.emit(NEWLINE, "\n", lineNo, len(raw)+1, offset+len(raw))
			l.state = stateLine
			return
		}
		body = append(body, raw)
	}
}

// Segment is a run of literal text or one parameter reference.
type Segment struct {
	Text    string // source text, e.g. "echo " or "${name}"
	Name    string // parameter name when Param or Escaped is set
	Param   bool
	Escaped bool // \$name: Text keeps the backslash, the shell gets $name
}

// ScanParams splits text into literal runs and $name / ${name} references.
// All-caps names are environment variables and stay literal. An escaped
// \$name is its own segment so substitution can hand $name to the shell.
func ScanParams(text string) []Segment {
	var segs []Segment
	start := 0
	flush := func(end int) {
		if end > start {
			segs = append(segs, Segment{Text: text[start:end]})
		}
	}
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch == '\\' && i+1 < len(text) && text[i+1] == '$' {
			if name, end, ok := paramAt(text, i+1); ok {
				flush(i)
				segs = append(segs, Segment{Text: text[i:end], Name: name, Escaped: true})
				start = end
				i = end - 1
				continue
			}
			i++
			continue
		}
		if ch != '$' {
			continue
		}
		name, end, ok := paramAt(text, i)
		if !ok {
			continue
		}
		flush(i)
		segs = append(segs, Segment{Text: text[i:end], Name: name, Param: true})
		start = end
		i = end - 1
	}
	flush(len(text))
	return segs
}

// paramAt reads a parameter reference at text[i], which holds '$'.
func paramAt(text string, i int) (name string, end int, ok bool) {
	if i+1 >= len(text) {
		return "", 0, false
	}
	if text[i+1] == '{' {
		closing := strings.IndexByte(text[i+2:], '}')
		if closing < 0 {
			return "", 0, false
		}
		name = text[i+2 : i+2+closing]
		end = i + 3 + closing
	} else {
		j := i + 1
		for j < len(text) && isIdentChar(text[j], j == i+1) {
			j++
		}
		name = text[i+1 : j]
		end = j
	}
	if !isIdentifier(name) || isEnvName(name) {
		return "", 0, false
	}
	return name, end, true
}

// ParamNames returns the distinct parameter names referenced in text, in
// order of first appearance.
func ParamNames(text string) []string {
	var names []string
	seen := map[string]bool{}
	for _, seg := range ScanParams(text) {
		if seg.Param && !seen[seg.Name] {
			seen[seg.Name] = true
			names = append(names, seg.Name)
		}
	}
	return names
}

func splitHead(text string) (head, rest string) {
	idx := strings.IndexAny(text, " \t")
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimLeft(text[idx:], " \t")
}

// leadingTag recognizes [lang:x], [best-effort] and [local] at the start of text.
func leadingTag(text string) (tag, rest string, ok bool) {
	if !strings.HasPrefix(text, "[") {
		return "", text, false
	}
	end := strings.IndexByte(text, ']')
	if end < 0 {
		return "", text, false
	}
	tag = text[1:end]
	switch {
	case strings.HasPrefix(tag, "lang:") && len(tag) > len("lang:") && !strings.ContainsAny(tag, " \t"):
	case tag == "best-effort" || tag == "local":
	default:
		return "", text, false
	}
	return tag, text[end+1:], true
}

// splitHeredoc detects a `<< DELIM`, `<<-DELIM` or `<<'DELIM'` operator.
// trailing holds any redirections written after the delimiter.
func splitHeredoc(line string) (prefix, trailing string, hd heredocState, ok bool) {
	idx := strings.LastIndex(line, "<<")
	if idx < 0 || (idx > 0 && line[idx-1] == '<') {
		return "", "", hd, false
	}
	prefix = strings.TrimRightFunc(line[:idx], unicode.IsSpace)
	if strings.Count(prefix, "((") > strings.Count(prefix, "))") {
		return "", "", hd, false
	}
	rest := line[idx+2:]
	if strings.HasPrefix(rest, "<") {
		return "", "", hd, false
	}
	rest = strings.TrimLeft(strings.TrimPrefix(rest, "-"), " \t")

	var delim string
	if rest != "" && (rest[0] == '\'' || rest[0] == '"') {
		end := strings.IndexByte(rest[1:], rest[0])
		if end < 0 {
			return "", "", hd, false
		}
		delim, rest = rest[1:1+end], rest[end+2:]
		hd.quoted = true
	} else {
		end := strings.IndexAny(rest, " \t;|&<>)")
		if end < 0 {
			end = len(rest)
		}
		delim, rest = rest[:end], rest[end:]
	}
	if !isDelimiter(delim) {
		return "", "", heredocState{}, false
	}
	hd.delim = delim
	return prefix, strings.TrimSpace(rest), hd, true
}

func isDelimiter(s string) bool {
	if s == "" || !(unicode.IsLetter(rune(s[0])) || s[0] == '_') {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

// dedent removes the indentation shared by all non-blank lines.
func dedent(lines []string) string {
	common := -1
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		n := len(ln) - len(strings.TrimLeft(ln, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	out := make([]string, len(lines))
	for i, ln := range lines {
		switch {
		case strings.TrimSpace(ln) == "":
			out[i] = ""
		case common > 0:
			out[i] = ln[common:]
		default:
			out[i] = ln
		}
	}
	return strings.Join(out, "\n")
}

type word struct {
	text   string
	quoted bool
	offset int
}

// splitWords splits s on whitespace honoring single quotes, double quotes
// and backslash escapes.
func splitWords(s string) ([]word, error) {
	var words []word
	var cur strings.Builder
	inWord, quoted := false, false
	start := 0
	var quote byte

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else if ch == '\\' && quote == '"' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
				i++
				cur.WriteByte(s[i])
			} else {
				cur.WriteByte(ch)
			}
		case ch == ' ' || ch == '\t':
			if inWord {
				words = append(words, word{text: cur.String(), quoted: quoted, offset: start})
				cur.Reset()
				inWord, quoted = false, false
			}
		case ch == '#' && !inWord:
			i = len(s)
		default:
			if !inWord {
				inWord, start = true, i
			}
			switch ch {
			case '"', '\'':
				quote, quoted = ch, true
			case '\\':
				if i+1 < len(s) {
					i++
					cur.WriteByte(s[i])
				}
			default:
				cur.WriteByte(ch)
			}
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inWord {
		words = append(words, word{text: cur.String(), quoted: quoted, offset: start})
	}
	return words, nil
}

// SplitWords exposes the word splitter used for verb arguments.
func SplitWords(s string) ([]string, error) {
	words, err := splitWords(s)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.text
	}
	return out, nil
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return s, false
}

func isIdentChar(ch byte, first bool) bool {
	if ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
		return true
	}
	return !first && ch >= '0' && ch <= '9'
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i], i == 0) {
			return false
		}
	}
	return true
}

// isEnvName reports whether name follows the environment variable
// convention (no lower-case letters).
func isEnvName(name string) bool {
	return strings.ToUpper(name) == name
}

func isTaskName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("-_.:", r) {
			return false
		}
	}
	return true
}

// IsIdentifier reports whether s is a valid parameter or variable name.
func IsIdentifier(s string) bool { return isIdentifier(s) }
