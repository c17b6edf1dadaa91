package verbs

import (
	"os"
	"path/filepath"
	"strconv"
)

func buildDir(ctx Context, args *Args) string {
	if dir := args.Options["dir"]; dir != "" {
		return localPath(ctx.BaseDir, dir)
	}
	return ctx.BaseDir
}

func jobs(ctx Context, verb string, args *Args) (string, error) {
	j := args.Options["jobs"]
	if j == "" {
		return "", nil
	}
	if n, err := strconv.Atoi(j); err != nil || n < 1 {
		return "", ctx.errorf("%s: jobs=%q is not a positive number", verb, j)
	}
	return j, nil
}

// makefile [TARGET...] [jobs=N] [file=F] [dir=D] [VAR=value...]
func translateMakefile(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "makefile", "jobs", "file", "dir"); err != nil {
		return nil, err
	}
	j, err := jobs(ctx, "makefile", args)
	if err != nil {
		return nil, err
	}
	argv := []string{"make"}
	if f := args.Options["file"]; f != "" {
		argv = append(argv, "-f", f)
	}
	if j != "" {
		argv = append(argv, "-j", j)
	}
	argv = append(argv, args.Passthrough...)
	argv = append(argv, args.Positional...)
	argv = append(argv, args.Vars...)
	return &Command{Argv: argv, Dir: buildDir(ctx, args)}, nil
}

// cmake [source=.] [build=build] [type=T] [generator=G] [target=T] [jobs=N] [-D...]
func translateCMake(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "cmake", "source", "build", "type", "generator", "target", "jobs", "dir"); err != nil {
		return nil, err
	}
	if len(args.Positional) > 0 {
		return nil, ctx.errorf("cmake: unexpected argument %q; use source= and build=", args.Positional[0])
	}
	j, err := jobs(ctx, "cmake", args)
	if err != nil {
		return nil, err
	}
	source := optionOr(args, "source", ".")
	build := optionOr(args, "build", "build")

	configure := []string{"cmake", "-S", source, "-B", build}
	if g := args.Options["generator"]; g != "" {
		configure = append(configure, "-G", g)
	}
	if t := args.Options["type"]; t != "" {
		configure = append(configure, "-DCMAKE_BUILD_TYPE="+t)
	}
	configure = append(configure, args.Passthrough...)

	compile := []string{"cmake", "--build", build}
	if t := args.Options["target"]; t != "" {
		compile = append(compile, "--target", t)
	}
	if j != "" {
		compile = append(compile, "-j", j)
	}
	return &Command{Argv: chain(configure, compile), Dir: buildDir(ctx, args)}, nil
}

// meson [source=.] [build=builddir] [buildtype=T]
func translateMeson(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "meson", "source", "build", "buildtype", "dir"); err != nil {
		return nil, err
	}
	if len(args.Positional) > 0 {
		return nil, ctx.errorf("meson: unexpected argument %q; use source= and build=", args.Positional[0])
	}
	build := optionOr(args, "build", "builddir")
	setup := []string{"meson", "setup", build, optionOr(args, "source", ".")}
	if t := args.Options["buildtype"]; t != "" {
		setup = append(setup, "--buildtype="+t)
	}
	setup = append(setup, args.Passthrough...)
	compile := []string{"meson", "compile", "-C", build}
	return &Command{Argv: chain(setup, compile), Dir: buildDir(ctx, args)}, nil
}

var cargoCommands = map[string]bool{
	"build": true, "test": true, "run": true, "check": true, "clean": true, "bench": true,
}

// cargo [build|test|run|check|clean|bench] [release=true] [features=a,b] [target=T] [manifest=P]
func translateCargo(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "cargo", "release", "features", "target", "manifest", "dir"); err != nil {
		return nil, err
	}
	sub := "build"
	rest := args.Positional
	if len(rest) > 0 {
		sub, rest = rest[0], rest[1:]
	}
	if !cargoCommands[sub] {
		return nil, ctx.errorf("cargo: unknown subcommand %q (build, test, run, check, clean or bench)", sub)
	}
	argv := []string{"cargo", sub}
	if args.flag("release") {
		argv = append(argv, "--release")
	}
	if f := args.Options["features"]; f != "" {
		argv = append(argv, "--features", f)
	}
	if t := args.Options["target"]; t != "" {
		argv = append(argv, "--target", t)
	}
	if m := args.Options["manifest"]; m != "" {
		argv = append(argv, "--manifest-path", m)
	}
	argv = append(argv, args.Passthrough...)
	if len(rest) > 0 {
		argv = append(append(argv, "--"), rest...)
	}
	return &Command{Argv: argv, Dir: buildDir(ctx, args)}, nil
}

// go_build [PACKAGE...] [output=P] [tags=a,b] [ldflags=S] [race=true] [os=O] [arch=A]
func translateGoBuild(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "go_build", "output", "tags", "ldflags", "race", "os", "arch", "dir"); err != nil {
		return nil, err
	}
	argv := []string{"go", "build"}
	if o := args.Options["output"]; o != "" {
		argv = append(argv, "-o", o)
	}
	if t := args.Options["tags"]; t != "" {
		argv = append(argv, "-tags", t)
	}
	if l := args.Options["ldflags"]; l != "" {
		argv = append(argv, "-ldflags", l)
	}
	if args.flag("race") {
		argv = append(argv, "-race")
	}
	argv = append(argv, args.Passthrough...)
	pkgs := args.Positional
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	argv = append(argv, pkgs...)

	var env map[string]string
	if goos, goarch := args.Options["os"], args.Options["arch"]; goos != "" || goarch != "" {
		env = make(map[string]string)
		if goos != "" {
			env["GOOS"] = goos
		}
		if goarch != "" {
			env["GOARCH"] = goarch
		}
	}
	return &Command{Argv: argv, Env: env, Dir: buildDir(ctx, args)}, nil
}

// configure [prefix=P] [jobs=N] [--flags...]
func translateConfigure(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "configure", "prefix", "jobs", "dir"); err != nil {
		return nil, err
	}
	if len(args.Positional) > 0 {
		return nil, ctx.errorf("configure: unexpected argument %q", args.Positional[0])
	}
	j, err := jobs(ctx, "configure", args)
	if err != nil {
		return nil, err
	}
	conf := []string{"./configure"}
	if p := args.Options["prefix"]; p != "" {
		conf = append(conf, "--prefix="+p)
	}
	conf = append(conf, args.Passthrough...)
	conf = append(conf, args.Vars...)
	mk := []string{"make"}
	if j != "" {
		mk = append(mk, "-j", j)
	}
	return &Command{Argv: chain(conf, mk), Dir: buildDir(ctx, args)}, nil
}

// justfile [RECIPE...] [file=F]
func translateJustfile(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "justfile", "file", "dir"); err != nil {
		return nil, err
	}
	argv := []string{"just"}
	if f := args.Options["file"]; f != "" {
		argv = append(argv, "--justfile", f)
	}
	argv = append(argv, args.Passthrough...)
	argv = append(argv, args.Vars...)
	argv = append(argv, args.Positional...)
	return &Command{Argv: argv, Dir: buildDir(ctx, args)}, nil
}

// buildSystem is one project layout autobuild can recognize.
type buildSystem struct {
	name      string
	markers   []string
	translate func(ctx Context, opts *Args) (*Command, error)
}

// Detection order: the first system with a marker file wins.
var buildSystems = []buildSystem{
	{"cargo", []string{"Cargo.toml"}, func(ctx Context, a *Args) (*Command, error) {
		return translateCargo(ctx, pick(a, "release", "dir"))
	}},
	{"go", []string{"go.mod"}, func(ctx Context, a *Args) (*Command, error) {
		return translateGoBuild(ctx, pick(a, "dir"))
	}},
	{"cmake", []string{"CMakeLists.txt"}, func(ctx Context, a *Args) (*Command, error) {
		b := pick(a, "jobs", "dir")
		if a.flag("release") {
			b.Options["type"] = "Release"
		}
		return translateCMake(ctx, b)
	}},
	{"meson", []string{"meson.build"}, func(ctx Context, a *Args) (*Command, error) {
		b := pick(a, "dir")
		if a.flag("release") {
			b.Options["buildtype"] = "release"
		}
		return translateMeson(ctx, b)
	}},
	{"configure", []string{"configure"}, func(ctx Context, a *Args) (*Command, error) {
		return translateConfigure(ctx, pick(a, "jobs", "dir"))
	}},
	{"just", []string{"justfile", "Justfile", ".justfile"}, func(ctx Context, a *Args) (*Command, error) {
		return translateJustfile(ctx, pick(a, "dir"))
	}},
	{"make", []string{"Makefile", "makefile", "GNUmakefile"}, func(ctx Context, a *Args) (*Command, error) {
		return translateMakefile(ctx, pick(a, "jobs", "dir"))
	}},
}

// autobuild [jobs=N] [release=true] [dir=D]
func translateAutobuild(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "autobuild", "jobs", "release", "dir"); err != nil {
		return nil, err
	}
	if len(args.Positional) > 0 || len(args.Passthrough) > 0 {
		return nil, ctx.errorf("autobuild takes only jobs=, release= and dir=")
	}
	dir := buildDir(ctx, args)
	if sys := detect(dir); sys != nil {
		return sys.translate(ctx, args)
	}
	if dir == "" {
		dir = "."
	}
	return nil, ctx.errorf("autobuild: no build system found in %s", dir)
}

// DetectBuildSystem names the build system autobuild would use in dir.
func DetectBuildSystem(dir string) (string, bool) {
	if sys := detect(dir); sys != nil {
		return sys.name, true
	}
	return "", false
}

func detect(dir string) *buildSystem {
	for i := range buildSystems {
		for _, marker := range buildSystems[i].markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return &buildSystems[i]
			}
		}
	}
	return nil
}

func pick(a *Args, keys ...string) *Args {
	out := &Args{Options: make(map[string]string)}
	for _, k := range keys {
		if v, ok := a.Options[k]; ok {
			out.Options[k] = v
		}
	}
	return out
}

func optionOr(a *Args, key, fallback string) string {
	if v := a.Options[key]; v != "" {
		return v
	}
	return fallback
}
