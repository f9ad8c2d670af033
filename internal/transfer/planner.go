// Package transfer plans and executes file copies between two live FTP
// sessions, tracking per-file state in the activity store and pushing
// lifecycle and progress events to the user's listeners.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ftpbridge/internal/db"
	"ftpbridge/internal/ftpx"
)

var (
	// ErrUnsupportedFileType marks a planned entry that is neither a plain
	// file nor a directory.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrNoTransferState marks an execution attempt with no planned
	// transfer on record. The caller skipped the planning step.
	ErrNoTransferState = errors.New("no transfer state for user")
)

// Planner walks a named entry in the source session's working directory and
// persists the resulting source-to-destination path mapping.
type Planner struct {
	DB     *db.DB
	Logger *slog.Logger
}

// Plan resolves target against the source session's current listing, walks
// it depth-first, and stores the finished plan as the user's pending set,
// replacing any previous record. Destination directories are created during
// the walk; they are not rolled back when planning fails, since re-creating
// them on a retry is harmless.
func (p *Planner) Plan(ctx context.Context, userID int64, src, dst *ftpx.SessionHandle, target string) ([]db.PathMapping, error) {
	srcDir, err := src.WorkingDirectory()
	if err != nil {
		return nil, err
	}
	dstDir, err := dst.WorkingDirectory()
	if err != nil {
		return nil, err
	}

	entry, err := resolveEntry(src, srcDir, target)
	if err != nil {
		return nil, err
	}

	var plan []db.PathMapping
	switch entry.Kind {
	case ftpx.KindFile:
		plan = []db.PathMapping{{
			Src: ftpx.JoinPath(srcDir, target),
			Dst: ftpx.JoinPath(dstDir, target),
		}}
	case ftpx.KindDirectory:
		// A directory target copies its contents into the destination's
		// current directory; only subdirectories are mirrored by name.
		plan, err = walk(src, dst, ftpx.JoinPath(srcDir, target), dstDir, nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s is a %s", ErrUnsupportedFileType, target, entry.Kind)
	}

	if err := p.DB.ReplacePlan(ctx, userID, src.ServerID(), target, plan); err != nil {
		return nil, fmt.Errorf("store plan: %w", err)
	}
	p.logger().Info("transfer planned",
		"user_id", userID, "source_server_id", src.ServerID(), "target", target, "files", len(plan))
	return plan, nil
}

// resolveEntry finds the named child in dir or fails with ErrPathDoesNotExist.
func resolveEntry(h *ftpx.SessionHandle, dir, name string) (ftpx.FileEntry, error) {
	entries, err := h.List(dir)
	if err != nil {
		return ftpx.FileEntry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return ftpx.FileEntry{}, fmt.Errorf("%w: %s", ftpx.ErrPathDoesNotExist, ftpx.JoinPath(dir, name))
}

// walk mirrors srcPath onto dstPath depth-first, appending one mapping per
// file in listing order. Both paths are absolute; neither session's working
// directory is touched.
func walk(src, dst *ftpx.SessionHandle, srcPath, dstPath string, acc []db.PathMapping) ([]db.PathMapping, error) {
	if err := dst.EnsureDirectory(dstPath); err != nil {
		return nil, err
	}
	children, err := src.List(srcPath)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		switch child.Kind {
		case ftpx.KindFile:
			acc = append(acc, db.PathMapping{
				Src: ftpx.JoinPath(srcPath, child.Name),
				Dst: ftpx.JoinPath(dstPath, child.Name),
			})
		case ftpx.KindDirectory:
			acc, err = walk(src, dst, ftpx.JoinPath(srcPath, child.Name), ftpx.JoinPath(dstPath, child.Name), acc)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %s is a %s", ErrUnsupportedFileType, ftpx.JoinPath(srcPath, child.Name), child.Kind)
		}
	}
	return acc, nil
}

func (p *Planner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
