package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"ftpbridge/internal/db"
	"ftpbridge/internal/ftpx"
	"ftpbridge/internal/session"
)

// Executor drains a planned transfer file by file. It is the only component
// that touches both sessions and the activity store at the same time.
type Executor struct {
	DB       *db.DB
	Registry *session.Registry
	Logger   *slog.Logger
}

// Run executes the user's planned transfer. Files are attempted in plan
// order; one file's failure is recorded and the loop moves on. Cancellation
// is observed at each file boundary: once requested, every remaining pending
// entry is drained into failed without being attempted. The run ends with a
// transfer_completed or transfer_canceled event.
func (e *Executor) Run(ctx context.Context, userID int64, src, dst *ftpx.SessionHandle) error {
	rec, err := e.DB.GetTransferActivity(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNoTransferState
	}

	e.Registry.Broadcast(userID, EventTransferStarted, lifecycleBody(rec.SourceServerID, rec.Target))
	e.Registry.SetCancellation(userID, false)

	for _, m := range rec.Pending {
		if e.Registry.CancellationRequested(userID) {
			if err := e.DB.MovePendingToFailed(ctx, userID, m.Src); err != nil {
				return err
			}
			continue
		}

		if err := e.DB.MovePendingToCurrent(ctx, userID, m.Src); err != nil {
			return err
		}
		if copyErr := e.copyFile(userID, src, dst, m); copyErr != nil {
			e.logger().Warn("file transfer failed",
				"user_id", userID, "src", m.Src, "dst", m.Dst, "error", copyErr)
			if err := e.DB.MoveCurrentToFailed(ctx, userID, m.Src); err != nil {
				return err
			}
			continue
		}
		if err := e.DB.MoveCurrentToSuccess(ctx, userID, m.Src); err != nil {
			return err
		}
	}

	if e.Registry.CancellationRequested(userID) {
		e.Registry.Broadcast(userID, EventTransferCanceled, lifecycleBody(rec.SourceServerID, rec.Target))
	} else {
		e.Registry.Broadcast(userID, EventTransferCompleted, lifecycleBody(rec.SourceServerID, rec.Target))
	}
	return nil
}

// copyFile streams one file from src to dst. The download runs in its own
// goroutine writing into the stream while the upload reads from it; both
// must finish for the copy to count. The stream is registered as the user's
// active stream so a concurrent cancel can force-close it.
func (e *Executor) copyFile(userID int64, src, dst *ftpx.SessionHandle, m db.PathMapping) error {
	dir, name := ftpx.SplitPath(m.Src)
	entries, err := src.List(dir)
	if err != nil {
		return err
	}
	found := false
	for _, en := range entries {
		if en.Name == name && en.Kind == ftpx.KindFile {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ftpx.ErrPathDoesNotExist, m.Src)
	}

	stream := NewStream()
	e.Registry.SetActiveStream(userID, stream)
	defer e.Registry.ClearActiveStream(userID)

	download := make(chan error, 1)
	go func() {
		err := src.DownloadInto(stream, m.Src)
		stream.CloseWrite(err)
		download <- err
	}()

	upErr := dst.UploadFrom(stream, m.Dst)
	if upErr != nil {
		// Unblock the download side if it is still writing.
		stream.CloseRead(upErr)
	}
	dlErr := <-download

	var errs *multierror.Error
	if dlErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("download: %w", dlErr))
	}
	if upErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("upload: %w", upErr))
	}
	return errs.ErrorOrNil()
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
