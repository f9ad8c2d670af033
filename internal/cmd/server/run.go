package server

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ftpbridge/internal/config"
	"ftpbridge/internal/daemon"
	"ftpbridge/internal/logging"
	"ftpbridge/internal/version"
)

type Options struct {
	ConfigPath string
	LogLevel   string
	LogJSON    bool

	DBPath      string
	BindAddr    string
	WebPort     int
	TLSCertPath string
	TLSKeyPath  string
	DialTimeout time.Duration
}

func Run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	var opt Options
	var showVersion bool
	fs.StringVar(&opt.ConfigPath, "config", "", "path to ftpbridge.yaml (when set, other flags are ignored)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&opt.LogLevel, "log-level", "info", "log level: debug|info|warning|error")
	fs.BoolVar(&opt.LogJSON, "log-json", false, "log as JSON")
	fs.StringVar(&opt.DBPath, "db", "./data/ftpbridge.db", "sqlite database path")
	fs.StringVar(&opt.BindAddr, "bind", "127.0.0.1", "bind address")
	fs.IntVar(&opt.WebPort, "port", 5141, "HTTP API port")
	fs.StringVar(&opt.TLSCertPath, "tls-cert", "", "TLS certificate path (both cert and key enable TLS)")
	fs.StringVar(&opt.TLSKeyPath, "tls-key", "", "TLS key path")
	fs.DurationVar(&opt.DialTimeout, "dial-timeout", 30*time.Second, "FTP dial timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("ftpbridge server %s\n", version.Version)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opt.ConfigPath != "" {
		c, err := config.Load(opt.ConfigPath)
		if err != nil {
			return err
		}
		base := filepath.Dir(opt.ConfigPath)
		lg, err := logging.New(logging.Options{Level: c.Log.Level, JSON: c.Log.JSON, DefaultSlog: true})
		if err != nil {
			return err
		}
		return daemon.Run(ctx, daemon.Options{
			DBPath:         resolvePath(base, c.DB.Path),
			BindAddr:       c.HTTP.Bind,
			WebPort:        c.HTTP.Port,
			TLSCertPath:    resolvePath(base, c.HTTP.TLS.CertPath),
			TLSKeyPath:     resolvePath(base, c.HTTP.TLS.KeyPath),
			FTPDialTimeout: time.Duration(c.FTP.DialTimeoutSeconds) * time.Second,
			Logger:         lg,
		})
	}

	lg, err := logging.New(logging.Options{Level: opt.LogLevel, JSON: opt.LogJSON, DefaultSlog: true})
	if err != nil {
		return err
	}
	return daemon.Run(ctx, daemon.Options{
		DBPath:         opt.DBPath,
		BindAddr:       opt.BindAddr,
		WebPort:        opt.WebPort,
		TLSCertPath:    opt.TLSCertPath,
		TLSKeyPath:     opt.TLSKeyPath,
		FTPDialTimeout: opt.DialTimeout,
		Logger:         lg,
	})
}

func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
