package app

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/phillarmonic/pf/internal/credentials"
	"github.com/phillarmonic/pf/internal/errors"
)

// Domain: Credential Management
// This file contains `pf credentials set|delete|list`

const credentialsUsage = "Usage: pf credentials set <password|passphrase> <subject> | delete <kind> <subject> | list"

func (a *App) credentials(cfg *WorkspaceConfig, args []string) error {
	if len(args) == 0 {
		return &errors.UsageError{Message: "credentials needs a command", Help: credentialsUsage}
	}
	store, err := credentials.NewStore(credentials.WithService(cfg.SSH.KeyringService))
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	switch args[0] {
	case "list":
		entries, err := store.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			a.printf("No credentials stored.\n")
			return nil
		}
		for _, e := range entries {
			a.printf("  %-10s %s\n", e.Kind, e.Subject)
		}
		return nil

	case "set", "delete":
		if len(args) != 3 {
			return &errors.UsageError{Message: fmt.Sprintf("credentials %s needs a kind and a subject", args[0]), Help: credentialsUsage}
		}
		kind, err := credentials.ParseKind(args[1])
		if err != nil {
			return &errors.UsageError{Message: err.Error(), Help: credentialsUsage}
		}
		subject := args[2]

		if args[0] == "delete" {
			if err := store.Delete(kind, subject); err != nil {
				return err
			}
			a.printf("🗑️  Deleted %s for %s\n", kind, subject)
			return nil
		}

		_, _ = fmt.Fprintf(a.stderr, "Enter %s for %s: ", kind, subject)
		secret, err := a.readSecret()
		if secret == "" {
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", kind, err)
			}
			return errors.Usagef("empty %s not stored", kind)
		}
		if err := store.Set(kind, subject, secret); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(a.stderr)
		a.printf("🔐 Stored %s for %s\n", kind, subject)
		return nil
	}
	return &errors.UsageError{Message: fmt.Sprintf("unknown credentials command %q", args[0]), Help: credentialsUsage}
}

// readSecret reads one line without echo when stdin is a terminal.
func (a *App) readSecret() (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return string(b), err
	}
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}
