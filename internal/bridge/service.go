// Package bridge is the operation surface the HTTP layer calls. It ties the
// session registry, the FTP dialer, the transfer planner/executor, and the
// database together, scoped to one authenticated requester per call.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"ftpbridge/internal/db"
	"ftpbridge/internal/ftpx"
	"ftpbridge/internal/session"
	"ftpbridge/internal/transfer"
)

// ErrUnknownServer marks a server profile id the requester does not own.
var ErrUnknownServer = errors.New("unknown server")

// Requester identifies the authenticated caller of an operation.
type Requester struct {
	UserID   int64
	Username string
}

// Service exposes the orchestrator's operations.
type Service struct {
	db       *db.DB
	registry *session.Registry
	dialer   *ftpx.Dialer
	planner  *transfer.Planner
	executor *transfer.Executor
	logger   *slog.Logger
}

func NewService(d *db.DB, reg *session.Registry, dialer *ftpx.Dialer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       d,
		registry: reg,
		dialer:   dialer,
		planner:  &transfer.Planner{DB: d, Logger: logger},
		executor: &transfer.Executor{DB: d, Registry: reg, Logger: logger},
		logger:   logger,
	}
}

func (s *Service) profile(ctx context.Context, req Requester, serverID int64) (*db.ServerProfile, error) {
	p, ok, err := s.db.GetServerForOwner(ctx, serverID, req.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownServer, serverID)
	}
	return p, nil
}

// Connect opens an authenticated FTP session for one of the requester's
// server profiles, stores it in a session slot, and returns the working
// directory with its listing. When the profile remembers a working
// directory, the session moves there first; a stale remembered directory
// falls back to the server's landing directory.
func (s *Service) Connect(ctx context.Context, req Requester, serverID int64, password string) (string, []ftpx.FileEntry, error) {
	p, err := s.profile(ctx, req, serverID)
	if err != nil {
		return "", nil, err
	}

	h, err := s.dialer.Connect(ctx, p, password)
	if err != nil {
		return "", nil, err
	}
	if p.LastWorkingDirectory != "" {
		if cdErr := h.ChangeDirectory(p.LastWorkingDirectory); cdErr != nil {
			s.logger.Warn("stored working directory is gone",
				"server_id", serverID, "dir", p.LastWorkingDirectory, "error", cdErr)
		}
	}

	if err := s.registry.Attach(req.UserID, serverID, h); err != nil {
		_ = h.Disconnect()
		return "", nil, err
	}

	wd, err := h.WorkingDirectory()
	if err != nil {
		return "", nil, err
	}
	entries, err := h.List(wd)
	if err != nil {
		return "", nil, err
	}
	if err := s.db.UpdateServerWorkingDirectory(ctx, serverID, wd); err != nil {
		return "", nil, err
	}
	s.logger.Info("ftp session opened", "user", req.Username, "server_id", serverID, "dir", wd)
	return wd, entries, nil
}

// Disconnect closes the requester's session for a server and frees its slot.
func (s *Service) Disconnect(ctx context.Context, req Requester, serverID int64) error {
	h, err := s.registry.Get(req.UserID, serverID)
	if err != nil {
		return err
	}
	s.registry.Detach(req.UserID, serverID)
	return h.Disconnect()
}

// List changes into path when given, then returns the listing of the
// session's working directory and persists that directory on the profile.
func (s *Service) List(ctx context.Context, req Requester, serverID int64, path string) (string, []ftpx.FileEntry, error) {
	h, err := s.registry.Get(req.UserID, serverID)
	if err != nil {
		return "", nil, err
	}
	if path != "" {
		if err := h.ChangeDirectory(path); err != nil {
			return "", nil, err
		}
	}
	wd, err := h.WorkingDirectory()
	if err != nil {
		return "", nil, err
	}
	entries, err := h.List(wd)
	if err != nil {
		return "", nil, err
	}
	if err := s.db.UpdateServerWorkingDirectory(ctx, serverID, wd); err != nil {
		return "", nil, err
	}
	return wd, entries, nil
}

// CreateDirectory creates a directory on the session's server. Creating an
// existing directory is not an error.
func (s *Service) CreateDirectory(ctx context.Context, req Requester, serverID int64, path string) error {
	h, err := s.registry.Get(req.UserID, serverID)
	if err != nil {
		return err
	}
	return h.EnsureDirectory(path)
}

// DeleteEntry removes a file on the session's server.
func (s *Service) DeleteEntry(ctx context.Context, req Requester, serverID int64, path string) error {
	h, err := s.registry.Get(req.UserID, serverID)
	if err != nil {
		return err
	}
	return h.DeleteEntry(path)
}

// PlanAndExecuteTransfer plans a transfer of target from the source
// session's working directory into the destination session's working
// directory, then runs it to completion. Both sessions must be connected.
func (s *Service) PlanAndExecuteTransfer(ctx context.Context, req Requester, sourceServerID, destServerID int64, target string) error {
	src, err := s.registry.Get(req.UserID, sourceServerID)
	if err != nil {
		return err
	}
	dst, err := s.registry.Get(req.UserID, destServerID)
	if err != nil {
		return err
	}
	if _, err := s.planner.Plan(ctx, req.UserID, src, dst, target); err != nil {
		return err
	}
	return s.executor.Run(ctx, req.UserID, src, dst)
}

// CancelTransfer flags the requester's running transfer for cancellation
// and aborts the file copy currently in flight.
func (s *Service) CancelTransfer(req Requester) {
	s.registry.RequestCancel(req.UserID)
	s.logger.Info("transfer cancellation requested", "user", req.Username)
}

// TransferActivity returns the requester's persisted transfer record, or
// nil when none exists.
func (s *Service) TransferActivity(ctx context.Context, req Requester) (*db.TransferActivity, error) {
	return s.db.GetTransferActivity(ctx, req.UserID)
}

// ClearTransferActivity drops the requester's persisted transfer record.
func (s *Service) ClearTransferActivity(ctx context.Context, req Requester) error {
	return s.db.ClearTransferActivity(ctx, req.UserID)
}

// RegisterProgressListener subscribes a callback to the requester's events
// and returns the id that unsubscribes it.
func (s *Service) RegisterProgressListener(req Requester, fn ftpx.EventFunc) string {
	return s.registry.RegisterListener(req.UserID, fn)
}

// UnregisterProgressListener removes a previously registered callback.
func (s *Service) UnregisterProgressListener(req Requester, id string) {
	s.registry.UnregisterListener(req.UserID, id)
}

// CleanupUser tears down every session the requester holds and clears the
// persisted transfer record. Called on logout.
func (s *Service) CleanupUser(ctx context.Context, req Requester) error {
	var errs *multierror.Error
	if s.registry.HasState(req.UserID) {
		if err := s.registry.CleanupUser(req.UserID); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := s.db.ClearTransferActivity(ctx, req.UserID); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
