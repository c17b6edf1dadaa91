package verbs

import (
	"fmt"
	"strconv"
	"strings"
)

type packageManager struct {
	name    string
	binary  string
	actions map[string][]string
}

// Probe order when no manager= option is given.
var packageManagers = []packageManager{
	{"apt", "apt-get", map[string][]string{
		"install": {"install", "-y"}, "remove": {"remove", "-y"},
		"update": {"update"}, "upgrade": {"upgrade", "-y"},
	}},
	{"dnf", "dnf", map[string][]string{
		"install": {"install", "-y"}, "remove": {"remove", "-y"},
		"update": {"makecache"}, "upgrade": {"upgrade", "-y"},
	}},
	{"yum", "yum", map[string][]string{
		"install": {"install", "-y"}, "remove": {"remove", "-y"},
		"update": {"makecache"}, "upgrade": {"update", "-y"},
	}},
	{"apk", "apk", map[string][]string{
		"install": {"add"}, "remove": {"del"},
		"update": {"update"}, "upgrade": {"upgrade"},
	}},
	{"pacman", "pacman", map[string][]string{
		"install": {"-S", "--noconfirm", "--needed"}, "remove": {"-R", "--noconfirm"},
		"update": {"-Sy"}, "upgrade": {"-Syu", "--noconfirm"},
	}},
	{"zypper", "zypper", map[string][]string{
		"install": {"--non-interactive", "install"}, "remove": {"--non-interactive", "remove"},
		"update": {"refresh"}, "upgrade": {"--non-interactive", "update"},
	}},
	{"brew", "brew", map[string][]string{
		"install": {"install"}, "remove": {"uninstall"},
		"update": {"update"}, "upgrade": {"upgrade"},
	}},
}

func lookupManager(name string) (packageManager, bool) {
	for _, pm := range packageManagers {
		if pm.name == name || pm.binary == name {
			return pm, true
		}
	}
	return packageManager{}, false
}

func managerNames() string {
	names := make([]string, len(packageManagers))
	for i, pm := range packageManagers {
		names[i] = pm.name
	}
	return strings.Join(names, ", ")
}

// packages install|remove|update|upgrade PKG... [manager=NAME]
func translatePackages(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "packages", "manager"); err != nil {
		return nil, err
	}
	if len(args.Positional) == 0 {
		return nil, ctx.errorf("packages: missing action (install, remove, update or upgrade)")
	}
	action, pkgs := args.Positional[0], args.Positional[1:]
	switch action {
	case "install", "remove":
		if len(pkgs) == 0 {
			return nil, ctx.errorf("packages %s: no packages given", action)
		}
	case "update":
		if len(pkgs) > 0 {
			return nil, ctx.errorf("packages update refreshes the index and takes no packages")
		}
	case "upgrade":
	default:
		return nil, ctx.errorf("packages: unknown action %q (install, remove, update or upgrade)", action)
	}

	if name, ok := args.Options["manager"]; ok {
		pm, found := lookupManager(name)
		if !found {
			return nil, ctx.errorf("packages: unknown manager %q (known: %s)", name, managerNames())
		}
		argv := append([]string{pm.binary}, pm.actions[action]...)
		argv = append(argv, args.Passthrough...)
		return &Command{Argv: append(argv, pkgs...)}, nil
	}

	var b strings.Builder
	for i, pm := range packageManagers {
		keyword := "elif"
		if i == 0 {
			keyword = "if"
		}
		fmt.Fprintf(&b, "%s command -v %s >/dev/null 2>&1; then\n", keyword, pm.binary)
		words := append([]string{pm.binary}, pm.actions[action]...)
		words = append(words, args.Passthrough...)
		fmt.Fprintf(&b, "  exec %s \"$@\"\n", strings.Join(words, " "))
	}
	b.WriteString("fi\necho \"pf: no supported package manager found\" >&2\nexit 127\n")

	argv := append([]string{"sh", "-c", b.String(), "pf"}, pkgs...)
	return &Command{Argv: argv}, nil
}

var serviceActions = map[string]bool{
	"start": true, "stop": true, "restart": true, "reload": true,
	"enable": true, "disable": true, "status": true,
}

// service ACTION NAME... [manager=systemctl|service]
func translateService(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "service", "manager"); err != nil {
		return nil, err
	}
	if len(args.Positional) < 2 {
		return nil, ctx.errorf("service: expected an action and at least one service name")
	}
	action, names := args.Positional[0], args.Positional[1:]
	if !serviceActions[action] {
		return nil, ctx.errorf("service: unknown action %q (start, stop, restart, reload, enable, disable or status)", action)
	}

	switch manager := args.Options["manager"]; manager {
	case "", "systemctl":
		argv := append([]string{"systemctl", action}, args.Passthrough...)
		return &Command{Argv: append(argv, names...)}, nil
	case "service":
		if action == "enable" || action == "disable" {
			return nil, ctx.errorf("service: %s needs manager=systemctl", action)
		}
		script := fmt.Sprintf("for s in \"$@\"; do service \"$s\" %s || exit $?; done", action)
		return &Command{Argv: append([]string{"sh", "-c", script, "pf"}, names...)}, nil
	default:
		return nil, ctx.errorf("service: unknown manager %q (systemctl or service)", manager)
	}
}

// directory PATH... [mode=0755] [owner=u] [group=g] [state=present|absent]
func translateDirectory(ctx Context, args *Args) (*Command, error) {
	if err := args.check(ctx, "directory", "mode", "owner", "group", "state"); err != nil {
		return nil, err
	}
	if len(args.Positional) == 0 {
		return nil, ctx.errorf("directory: no path given")
	}
	if len(args.Passthrough) > 0 {
		return nil, ctx.errorf("directory: unexpected flag %s", args.Passthrough[0])
	}
	paths := args.Positional

	switch state := args.Options["state"]; state {
	case "", "present":
	case "absent":
		if len(args.Options) > 1 {
			return nil, ctx.errorf("directory: mode, owner and group do not apply to state=absent")
		}
		return &Command{Argv: append([]string{"rm", "-rf", "--"}, paths...)}, nil
	default:
		return nil, ctx.errorf("directory: unknown state %q (present or absent)", state)
	}

	mode, owner, group := args.Options["mode"], args.Options["owner"], args.Options["group"]
	if mode == "" && owner == "" && group == "" {
		return &Command{Argv: append([]string{"mkdir", "-p", "--"}, paths...)}, nil
	}

	argv := []string{"install", "-d"}
	if mode != "" {
		if _, err := strconv.ParseUint(mode, 8, 32); err != nil {
			return nil, ctx.errorf("directory: mode %q is not an octal permission", mode)
		}
		argv = append(argv, "-m", mode)
	}
	if owner != "" {
		argv = append(argv, "-o", owner)
	}
	if group != "" {
		argv = append(argv, "-g", group)
	}
	return &Command{Argv: append(argv, paths...)}, nil
}
