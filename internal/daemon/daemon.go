// Package daemon assembles the running service: database, session registry,
// FTP dialer, bridge, and the HTTP API listener.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"ftpbridge/internal/bridge"
	"ftpbridge/internal/db"
	"ftpbridge/internal/ftpx"
	"ftpbridge/internal/httpapi"
	"ftpbridge/internal/session"
)

type Options struct {
	DBPath   string
	BindAddr string
	WebPort  int

	TLSCertPath string
	TLSKeyPath  string

	FTPDialTimeout time.Duration

	Logger *slog.Logger
}

// Run serves the daemon until ctx is canceled or the listener fails.
func Run(ctx context.Context, opt Options) error {
	if opt.DBPath == "" {
		return errors.New("db path is required")
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(opt.DBPath), 0o700); err != nil {
		return err
	}
	d, err := db.Open(ctx, opt.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()

	registry := session.NewRegistry(logger)
	dialer := &ftpx.Dialer{Timeout: opt.FTPDialTimeout, Logger: logger}
	svc := bridge.NewService(d, registry, dialer, logger)

	go sweepExpiredSessions(ctx, d, logger)

	api := &httpapi.Server{
		DB:       d,
		Bridge:   svc,
		Logger:   logger,
		BindAddr: opt.BindAddr,
		Port:     opt.WebPort,
		CertPath: opt.TLSCertPath,
		KeyPath:  opt.TLSKeyPath,
	}

	logger.Info("ftpbridge daemon starting",
		"bind", opt.BindAddr, "port", opt.WebPort, "db", opt.DBPath,
		"tls", opt.TLSCertPath != "")
	err = api.ListenAndServe(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// sweepExpiredSessions drops stale login sessions once an hour.
func sweepExpiredSessions(ctx context.Context, d *db.DB, logger *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := d.DeleteExpiredSessions(ctx, time.Now().Unix())
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
