// Package setup initializes a fresh ftpbridge database and creates the
// first user account.
package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"ftpbridge/internal/auth"
	"ftpbridge/internal/db"
	"ftpbridge/internal/validate"
)

type Options struct {
	DBPath   string
	Username string
	// Password skips the interactive prompt when set. Intended for
	// scripted provisioning; prefer the prompt on a terminal.
	Password string
}

func Run(ctx context.Context, opt Options) error {
	if opt.DBPath == "" {
		return errors.New("db path is required")
	}
	if err := validate.Username(opt.Username); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opt.DBPath), 0o700); err != nil {
		return err
	}
	d, err := db.Open(ctx, opt.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()
	_ = os.Chmod(opt.DBPath, 0o600)

	if _, ok, err := d.GetUserByUsername(ctx, opt.Username); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("user %q already exists", opt.Username)
	}

	password := opt.Password
	if password == "" {
		password, err = PromptPassword(fmt.Sprintf("Password for %s", opt.Username))
		if err != nil {
			return err
		}
	}

	hash, err := auth.HashPassword(password, auth.DefaultArgon2Params())
	if err != nil {
		return err
	}
	id, err := d.CreateUser(ctx, opt.Username, hash)
	if err != nil {
		return err
	}
	fmt.Printf("created user %s (id %d) in %s\n", opt.Username, id, opt.DBPath)
	return nil
}

// PromptPassword reads a password twice without echo and requires the two
// entries to match. A non-terminal stdin is rejected.
func PromptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; pass the password explicitly")
	}
	for {
		fmt.Fprintf(os.Stderr, "%s: ", label)
		p1b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		fmt.Fprint(os.Stderr, "Confirm password: ")
		p2b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		p1 := strings.TrimSpace(string(p1b))
		p2 := strings.TrimSpace(string(p2b))
		if p1 == "" {
			fmt.Fprintln(os.Stderr, "password cannot be empty")
			continue
		}
		if p1 != p2 {
			fmt.Fprintln(os.Stderr, "passwords do not match")
			continue
		}
		return p1, nil
	}
}
