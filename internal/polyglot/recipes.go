package polyglot

// Kind selects how a recipe turns source text into a process.
type Kind int

const (
	// KindShell passes the code to the interpreter with -c.
	KindShell Kind = iota
	// KindInline passes one-line code through an inline flag such as
	// python3 -c. Multi-line code runs from a temp file like KindScript.
	KindInline
	// KindScript writes the code to a temp file and runs the interpreter on it.
	KindScript
	// KindCompile writes the code to a temp file, compiles it and runs the result.
	KindCompile
)

func (k Kind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindInline:
		return "inline"
	case KindScript:
		return "script"
	case KindCompile:
		return "compile"
	}
	return "unknown"
}

// Recipe describes how to run source code written in one language.
//
// Compile and Run are sh fragments evaluated inside the wrapper script where
// $src, $bin, $tmpdir and (with Setup) $classes are defined. Run receives the
// statement arguments as "$@".
type Recipe struct {
	Name     string
	Kind     Kind
	Command  []string // interpreter argv for shell, inline and script kinds
	Flag     string   // inline flag, e.g. -c or -e
	Ext      string
	Basename string
	Setup    []string
	Compile  string
	Run      string
}

func shellRecipe(name string) *Recipe {
	return &Recipe{Name: name, Kind: KindShell, Command: []string{name}}
}

func inlineRecipe(name, flag, ext string, command ...string) *Recipe {
	return &Recipe{Name: name, Kind: KindInline, Command: command, Flag: flag, Ext: ext}
}

func scriptRecipe(name, ext string, command ...string) *Recipe {
	return &Recipe{Name: name, Kind: KindScript, Command: command, Ext: ext}
}

func compileRecipe(name, ext, compile, run string) *Recipe {
	return &Recipe{Name: name, Kind: KindCompile, Ext: ext, Compile: compile, Run: run}
}

const llvmIRNote = "echo '(LLVM IR generated with O3 optimization)'"

func defaultRecipes() []*Recipe {
	return []*Recipe{
		// shells
		shellRecipe("bash"),
		shellRecipe("sh"),
		shellRecipe("dash"),
		shellRecipe("zsh"),
		shellRecipe("ksh"),
		scriptRecipe("fish", ".fish", "fish"),
		scriptRecipe("tcsh", ".csh", "tcsh"),
		scriptRecipe("pwsh", ".ps1", "pwsh", "-NoLogo", "-NonInteractive", "-File"),

		// interpreters
		inlineRecipe("python", "-c", ".py", "python3"),
		inlineRecipe("node", "-e", ".js", "node"),
		inlineRecipe("perl", "-e", ".pl", "perl"),
		inlineRecipe("ruby", "-e", ".rb", "ruby"),
		scriptRecipe("deno", ".ts", "deno", "run"),
		scriptRecipe("ts-node", ".ts", "ts-node"),
		scriptRecipe("php", ".php", "php"),
		scriptRecipe("r", ".R", "Rscript"),
		scriptRecipe("julia", ".jl", "julia"),
		scriptRecipe("haskell", ".hs", "runghc"),
		scriptRecipe("ocaml", ".ml", "ocaml"),
		scriptRecipe("elixir", ".exs", "elixir"),
		scriptRecipe("dart", ".dart", "dart", "run"),
		scriptRecipe("lua", ".lua", "lua"),
		scriptRecipe("go", ".go", "go", "run"),

		// compiled
		compileRecipe("rust", ".rs", `rustc "$src" -o "$bin"`, `"$bin"`),
		compileRecipe("c", ".c", `clang -x c "$src" -o "$bin"`, `"$bin"`),
		compileRecipe("cpp", ".cc", `clang++ "$src" -o "$bin"`, `"$bin"`),
		compileRecipe("c-llvm", ".c",
			`clang -x c -O3 -S -emit-llvm "$src" -o "$bin.ll" && cat "$bin.ll"`, llvmIRNote),
		compileRecipe("cpp-llvm", ".cc",
			`clang++ -O3 -S -emit-llvm "$src" -o "$bin.ll" && cat "$bin.ll"`, llvmIRNote),
		compileRecipe("c-llvm-bc", ".c",
			`clang -x c -O3 -c -emit-llvm "$src" -o "$bin.bc" && llvm-dis "$bin.bc" -o "$bin.ll" && cat "$bin.ll"`,
			"echo '(LLVM bitcode generated with O3 optimization)'"),
		compileRecipe("cpp-llvm-bc", ".cc",
			`clang++ -O3 -c -emit-llvm "$src" -o "$bin.bc" && llvm-dis "$bin.bc" -o "$bin.ll" && cat "$bin.ll"`,
			"echo '(LLVM bitcode generated with O3 optimization)'"),
		compileRecipe("fortran", ".f90", `gfortran "$src" -o "$bin"`, `"$bin"`),
		compileRecipe("fortran-llvm", ".f90",
			`flang -O3 "$src" -S -emit-llvm -o "$bin.ll" && cat "$bin.ll"`, llvmIRNote),
		compileRecipe("asm", ".s", `clang -x assembler "$src" -o "$bin"`, `"$bin"`),
		compileRecipe("zig", ".zig", `zig build-exe -O Debug -femit-bin="$bin" "$src"`, `"$bin"`),
		compileRecipe("nim", ".nim", `nim c -o:"$bin" "$src"`, `"$bin"`),
		compileRecipe("crystal", ".cr", `crystal build -o "$bin" "$src"`, `"$bin"`),
		compileRecipe("haskell-compile", ".hs", `ghc -o "$bin" "$src"`, `"$bin"`),
		compileRecipe("ocamlc", ".ml", `ocamlc -o "$bin" "$src"`, `"$bin"`),

		// jvm
		{
			Name:     "java-openjdk",
			Kind:     KindCompile,
			Ext:      ".java",
			Basename: "Main",
			Setup:    []string{`classes="$tmpdir/classes"`, `mkdir -p "$classes"`},
			Compile:  `javac -d "$classes" "$src"`,
			Run:      `java -cp "$classes" Main`,
		},
		{
			Name:     "java-android",
			Kind:     KindCompile,
			Ext:      ".java",
			Basename: "Main",
			Setup: []string{
				`classes="$tmpdir/classes"`,
				`mkdir -p "$classes"`,
				`platform_jar="${ANDROID_PLATFORM_JAR:-}"`,
			},
			Compile: `javac ${platform_jar:+-classpath "$platform_jar"} -d "$classes" "$src"`,
			Run:     `java -cp "$classes" Main`,
		},
	}
}

func defaultAliases() map[string]string {
	return map[string]string{
		"shell":               "bash",
		"shellscript":         "bash",
		"zshell":              "zsh",
		"dashshell":           "dash",
		"fishshell":           "fish",
		"powershell":          "pwsh",
		"ps1":                 "pwsh",
		"py":                  "python",
		"python3":             "python",
		"ipython":             "python",
		"javascript":          "node",
		"js":                  "node",
		"nodejs":              "node",
		"ts":                  "deno",
		"typescript":          "deno",
		"tsnode":              "ts-node",
		"c++":                 "cpp",
		"cxx":                 "cpp",
		"clang":               "c",
		"clang++":             "cpp",
		"g++":                 "cpp",
		"gcc":                 "c",
		"c-ir":                "c-llvm",
		"c-ll":                "c-llvm",
		"cpp-ir":              "cpp-llvm",
		"cpp-ll":              "cpp-llvm",
		"c-bc":                "c-llvm-bc",
		"cpp-bc":              "cpp-llvm-bc",
		"fortran-ll":          "fortran-llvm",
		"fortran-ir":          "fortran-llvm",
		"fortran90":           "fortran",
		"gfortran":            "fortran",
		"golang":              "go",
		"rb":                  "ruby",
		"pl":                  "perl",
		"ml":                  "ocaml",
		"hs":                  "haskell",
		"java":                "java-openjdk",
		"java-android-google": "java-android",
		"android-java":        "java-android",
		"asm86":               "asm",
	}
}
