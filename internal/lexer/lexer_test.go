package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLexer_BasicTask(t *testing.T) {
	input := `# build things
task build [alias b|alias mk]
  describe "Build the project"
  env MODE=release
  shell_lang bash
  echo "hi $name"
end`

	lexer := NewLexer(input)

	expectedTokens := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{COMMENT, "# build things"},
		{NEWLINE, "\n"},
		{TASK, "task"},
		{IDENT, "build"},
		{LBRACKET, "["},
		{ALIAS, "alias"},
		{IDENT, "b"},
		{PIPE, "|"},
		{ALIAS, "alias"},
		{IDENT, "mk"},
		{RBRACKET, "]"},
		{NEWLINE, "\n"},
		{DESCRIBE, "describe"},
		{STRING, "Build the project"},
		{NEWLINE, "\n"},
		{ENV, "env"},
		{ENV_ASSIGN, "MODE=release"},
		{NEWLINE, "\n"},
		{SHELL_LANG, "shell_lang"},
		{IDENT, "bash"},
		{NEWLINE, "\n"},
		{TEXT, `echo "hi `},
		{PARAM_REF, "$name"},
		{TEXT, `"`},
		{NEWLINE, "\n"},
		{END, "end"},
		{NEWLINE, "\n"},
		{EOF, ""},
	}

	for i, expected := range expectedTokens {
		tok := lexer.NextToken()

		if tok.Type != expected.expectedType {
			t.Fatalf("test[%d] - tokentype wrong. expected=%q, got=%q (literal: %q)",
				i, expected.expectedType, tok.Type, tok.Literal)
		}

		if tok.Literal != expected.expectedLiteral {
			t.Fatalf("test[%d] - literal wrong. expected=%q, got=%q",
				i, expected.expectedLiteral, tok.Literal)
		}
	}
}

func TestLexer_VerbsAndTags(t *testing.T) {
	input := `packages install nginx "curl tools"
[lang:python] print(1)
[best-effort] [local] rm -rf build
shell [lang:node] @scripts/run.js -- --fast
cargo build --release`

	var got []string
	for _, tok := range NewLexer(input).AllTokens() {
		got = append(got, tok.Type.String()+":"+tok.Literal)
	}

	want := []string{
		"VERB:packages", "WORD:install", "WORD:nginx", "WORD:curl tools", "NEWLINE:\n",
		"LANG_TAG:python", "TEXT:print(1)", "NEWLINE:\n",
		"FLAG_TAG:best-effort", "FLAG_TAG:local", "TEXT:rm -rf build", "NEWLINE:\n",
		"SHELL:shell", "LANG_TAG:node", "FILE_REF:scripts/run.js", "DASHDASH:--", "WORD:--fast", "NEWLINE:\n",
		"VERB:cargo", "WORD:build", "WORD:--release", "NEWLINE:\n",
		"EOF:",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestLexer_Heredoc(t *testing.T) {
	input := `task py
  shell [lang:python] << 'PY'
    for i in range(2):
        print("$name", i)
  PY
  cat <<EOF > out.txt
    hello $who
  EOF
end`

	tokens := NewLexer(input).AllTokens()
	var got []string
	for _, tok := range tokens {
		got = append(got, tok.Type.String()+":"+tok.Literal)
	}

	want := []string{
		"TASK:task", "IDENT:py", "NEWLINE:\n",
		"SHELL:shell", "LANG_TAG:python", "HEREDOC_START:PY",
		"HEREDOC_BODY:for i in range(2):\n    print(\"$name\", i)", "HEREDOC_END:PY", "NEWLINE:\n",
		"TEXT:cat <<EOF > out.txt", "HEREDOC_START:EOF",
		"HEREDOC_BODY:hello $who", "HEREDOC_END:EOF", "NEWLINE:\n",
		"END:end", "NEWLINE:\n",
		"EOF:",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	if !tokens[5].Quoted {
		t.Errorf("quoted delimiter not flagged on %v", tokens[5])
	}
}

func TestLexer_UnterminatedHeredoc(t *testing.T) {
	tokens := NewLexer("task x\n  shell << EOF\n  echo hi\n").AllTokens()
	var illegal *Token
	for i := range tokens {
		if tokens[i].Type == ILLEGAL {
			illegal = &tokens[i]
		}
	}
	if illegal == nil {
		t.Fatalf("expected ILLEGAL token, got %v", tokens)
	}
	if want := `unterminated heredoc: expected "EOF" to close the block opened at line 2`; illegal.Literal != want {
		t.Errorf("literal = %q, want %q", illegal.Literal, want)
	}
}

func TestLexer_PlainEnvCommandIsShell(t *testing.T) {
	tokens := NewLexer("env FOO=1 ./run.sh").AllTokens()
	if tokens[0].Type != TEXT || tokens[0].Literal != "env FOO=1 ./run.sh" {
		t.Errorf("first token = %v, want TEXT for the whole line", tokens[0])
	}
}

func TestScanParams(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{`echo "hi $name"`, []string{"name"}},
		{`echo ${port}:$host_name`, []string{"port", "host_name"}},
		{`echo $HOME $PATH $1 $? $$`, nil},
		{`echo \$literal`, nil},
		{`echo ${name:-x}`, nil},
		{`echo $a $a $b`, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParamNames(tt.input)); diff != "" {
				t.Errorf("ParamNames(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestScanParams_Lossless(t *testing.T) {
	inputs := []string{`echo "hi $name"`, `a=${b}c\$d $E`, `$x$y`, `trailing $`, `\${f}\$g\$`}
	for _, in := range inputs {
		var joined string
		for _, seg := range ScanParams(in) {
			joined += seg.Text
		}
		if joined != in {
			t.Errorf("segments of %q rejoin to %q", in, joined)
		}
	}
}

func TestScanParams_Escaped(t *testing.T) {
	got := ScanParams(`echo "\$f" $g`)
	want := []Segment{
		{Text: `echo "`},
		{Text: `\$f`, Name: "f", Escaped: true},
		{Text: `" `},
		{Text: `$g`, Name: "g", Param: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ScanParams() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitWords(t *testing.T) {
	got, err := SplitWords(`src=./dist dest="/var/www/my app" 'single quoted' esc\ aped # comment`)
	if err != nil {
		t.Fatalf("SplitWords() error = %v", err)
	}
	want := []string{"src=./dist", "dest=/var/www/my app", "single quoted", "esc aped"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitWords() mismatch (-want +got):\n%s", diff)
	}

	if _, err := SplitWords(`"open`); err == nil {
		t.Error("SplitWords() expected error for unterminated quote")
	}
}
