package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// File states for transfer_files rows. A planned path is always in exactly
// one state; moves between states are single keyed UPDATEs.
const (
	stateP = "pending"
	stateC = "current"
	stateS = "success"
	stateF = "failed"
)

// ErrNoSuchEntry is returned when a state move matches no row, which means
// the caller's view of the record has diverged from the store.
var ErrNoSuchEntry = errors.New("no transfer entry in expected state")

// GetTransferActivity returns the stored transfer record for a user, or nil
// when the user has never planned a transfer. Absence is not an error.
func (d *DB) GetTransferActivity(ctx context.Context, userID int64) (*TransferActivity, error) {
	var rec TransferActivity
	err := d.sql.QueryRowContext(ctx, `
SELECT source_server_id, target FROM transfer_activity WHERE user_id=?
`, userID).Scan(&rec.SourceServerID, &rec.Target)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.sql.QueryContext(ctx, `
SELECT src_path, dst_path, state FROM transfer_files WHERE user_id=? ORDER BY seq ASC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m PathMapping
		var state string
		if err := rows.Scan(&m.Src, &m.Dst, &state); err != nil {
			return nil, err
		}
		switch state {
		case stateP:
			rec.Pending = append(rec.Pending, m)
		case stateC:
			rec.Current = append(rec.Current, m)
		case stateS:
			rec.Success = append(rec.Success, m)
		case stateF:
			rec.Failed = append(rec.Failed, m)
		default:
			return nil, fmt.Errorf("unknown transfer file state %q", state)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReplacePlan atomically replaces the user's transfer record with a fresh
// plan: all entries pending, in the given order.
func (d *DB) ReplacePlan(ctx context.Context, userID, sourceServerID int64, target string, plan []PathMapping) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transfer_files WHERE user_id=?`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO transfer_activity(user_id, source_server_id, target, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET source_server_id=excluded.source_server_id, target=excluded.target, updated_at=excluded.updated_at
`, userID, sourceServerID, target, nowUnix()); err != nil {
		return err
	}
	for i, m := range plan {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO transfer_files(user_id, src_path, dst_path, state, seq)
VALUES(?, ?, ?, ?, ?)
`, userID, m.Src, m.Dst, stateP, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MovePendingToCurrent marks one pending entry as the file being copied.
func (d *DB) MovePendingToCurrent(ctx context.Context, userID int64, srcPath string) error {
	return d.moveState(ctx, userID, srcPath, stateP, stateC)
}

// MoveCurrentToSuccess records a finished copy.
func (d *DB) MoveCurrentToSuccess(ctx context.Context, userID int64, srcPath string) error {
	return d.moveState(ctx, userID, srcPath, stateC, stateS)
}

// MoveCurrentToFailed records a failed copy.
func (d *DB) MoveCurrentToFailed(ctx context.Context, userID int64, srcPath string) error {
	return d.moveState(ctx, userID, srcPath, stateC, stateF)
}

// MovePendingToFailed fails an entry that was never attempted, which happens
// when cancellation drains the remaining plan.
func (d *DB) MovePendingToFailed(ctx context.Context, userID int64, srcPath string) error {
	return d.moveState(ctx, userID, srcPath, stateP, stateF)
}

func (d *DB) moveState(ctx context.Context, userID int64, srcPath, from, to string) error {
	if userID <= 0 || srcPath == "" {
		return errors.New("invalid transfer entry key")
	}
	res, err := d.sql.ExecContext(ctx, `
UPDATE transfer_files SET state=? WHERE user_id=? AND src_path=? AND state=?
`, to, userID, srcPath, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s (%s -> %s)", ErrNoSuchEntry, srcPath, from, to)
	}
	return nil
}

// ClearTransferActivity removes the user's transfer record entirely.
func (d *DB) ClearTransferActivity(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM transfer_files WHERE user_id=?`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transfer_activity WHERE user_id=?`, userID); err != nil {
		return err
	}
	return tx.Commit()
}
