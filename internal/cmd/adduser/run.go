// Package adduser creates additional accounts in an existing database.
package adduser

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"ftpbridge/internal/auth"
	"ftpbridge/internal/db"
	"ftpbridge/internal/setup"
	"ftpbridge/internal/validate"
)

func Run(args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	var (
		dbPath   string
		username string
		password string
	)
	fs.StringVar(&dbPath, "db", "./data/ftpbridge.db", "sqlite database path")
	fs.StringVar(&username, "username", "", "new account name")
	fs.StringVar(&password, "password", "", "new account password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if dbPath == "" {
		return errors.New("db path is required")
	}
	if err := validate.Username(username); err != nil {
		return err
	}

	ctx := context.Background()
	d, err := db.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer d.Close()

	if _, ok, err := d.GetUserByUsername(ctx, username); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("user %q already exists", username)
	}

	if password == "" {
		password, err = setup.PromptPassword(fmt.Sprintf("Password for %s", username))
		if err != nil {
			return err
		}
	}
	hash, err := auth.HashPassword(password, auth.DefaultArgon2Params())
	if err != nil {
		return err
	}
	id, err := d.CreateUser(ctx, username, hash)
	if err != nil {
		return err
	}
	fmt.Printf("created user %s (id %d)\n", username, id)
	return nil
}
