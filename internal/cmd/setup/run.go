package setup

import (
	"context"
	"flag"

	isetup "ftpbridge/internal/setup"
)

func Run(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	var opt isetup.Options
	fs.StringVar(&opt.DBPath, "db", "./data/ftpbridge.db", "sqlite database path")
	fs.StringVar(&opt.Username, "username", "", "first user account name")
	fs.StringVar(&opt.Password, "password", "", "first user password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return isetup.Run(context.Background(), opt)
}
