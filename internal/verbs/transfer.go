package verbs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mholt/archives"
)

const untarScript = `mkdir -p "$1" && tar -xf - -C "$1"`

// copy SRC DEST
func translateCopy(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "copy"); err != nil {
		return nil, err
	}
	if len(args.Positional) != 2 || len(args.Passthrough) > 0 {
		return nil, ctx.errorf("copy: expected a source and a destination directory")
	}
	src := localPath(ctx.BaseDir, args.Positional[0])
	dest := args.Positional[1]

	info, err := os.Stat(src)
	if err != nil {
		return nil, ctx.errorf("copy: source %s: %v", args.Positional[0], unwrapPathError(err))
	}
	name := filepath.Base(strings.TrimRight(src, string(filepath.Separator)))
	if info.IsDir() && strings.HasSuffix(args.Positional[0], "/") {
		// "dir/" copies the directory's contents rather than the directory
		name = ""
	}

	return &Command{
		Argv: []string{"sh", "-c", untarScript, "pf", dest},
		Stdin: func(c context.Context) (io.ReadCloser, error) {
			return tarStream(c, src, name)
		},
	}, nil
}

// tarStream archives src under name and streams it through a pipe.
func tarStream(ctx context.Context, src, name string) (io.ReadCloser, error) {
	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{src: name})
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(archives.Tar{}.Archive(ctx, pw, files))
	}()
	return pr, nil
}

// sync SRC DEST [delete=true] [exclude=a,b] [dry=true]
func translateSync(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "sync", "delete", "exclude", "dry"); err != nil {
		return nil, err
	}
	if len(args.Positional) != 2 {
		return nil, ctx.errorf("sync: expected a source and a destination")
	}
	src := localPath(ctx.BaseDir, args.Positional[0])
	if strings.HasSuffix(args.Positional[0], "/") && !strings.HasSuffix(src, "/") {
		src += "/"
	}
	dest := args.Positional[1]

	base := []string{"rsync", "-az"}
	if args.flag("delete") {
		base = append(base, "--delete")
	}
	if args.flag("dry") {
		base = append(base, "--dry-run")
	}
	for _, pattern := range args.list("exclude") {
		base = append(base, "--exclude", pattern)
	}
	base = append(base, args.Passthrough...)

	perTarget := func(d Destination) []string {
		argv := append([]string{}, base...)
		if d.Local {
			return append(argv, src, dest)
		}
		if d.Port != 0 && d.Port != 22 {
			argv = append(argv, "-e", "ssh -p "+strconv.Itoa(d.Port))
		}
		remote := d.Host + ":" + dest
		if d.User != "" {
			remote = d.User + "@" + remote
		}
		return append(argv, src, remote)
	}

	return &Command{
		Argv:      perTarget(Destination{Local: true}),
		Placement: LocalPerTarget,
		perTarget: perTarget,
	}, nil
}

func localPath(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

func unwrapPathError(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}
