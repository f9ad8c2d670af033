// Package db contains database query helpers for ftpbridge.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// nowUnix returns the current Unix timestamp in seconds.
func nowUnix() int64 { return time.Now().Unix() }

// CreateUser inserts a new user and returns its database ID.
func (d *DB) CreateUser(ctx context.Context, username, passHash string) (int64, error) {
	if username == "" || passHash == "" {
		return 0, errors.New("username and password hash are required")
	}
	res, err := d.sql.ExecContext(ctx, `
INSERT INTO users(username, password_hash, enabled, created_at, updated_at)
VALUES(?, ?, 1, ?, ?)
`, username, passHash, nowUnix(), nowUnix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUserByUsername looks up a user by username.
func (d *DB) GetUserByUsername(ctx context.Context, username string) (*User, bool, error) {
	var u User
	var enabled int
	err := d.sql.QueryRowContext(ctx, `
SELECT id, username, password_hash, enabled, created_at, updated_at
FROM users WHERE username=?
`, username).Scan(&u.ID, &u.Username, &u.PassHash, &enabled, &u.CreatedAt, &u.UpdatedAt)
	if err == nil {
		u.Enabled = enabled != 0
		return &u, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// GetUserByID looks up a user by ID.
func (d *DB) GetUserByID(ctx context.Context, id int64) (*User, bool, error) {
	var u User
	var enabled int
	err := d.sql.QueryRowContext(ctx, `
SELECT id, username, password_hash, enabled, created_at, updated_at
FROM users WHERE id=?
`, id).Scan(&u.ID, &u.Username, &u.PassHash, &enabled, &u.CreatedAt, &u.UpdatedAt)
	if err == nil {
		u.Enabled = enabled != 0
		return &u, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// SetUserPasswordHash updates a user's password hash.
func (d *DB) SetUserPasswordHash(ctx context.Context, id int64, passHash string) error {
	if id <= 0 {
		return errors.New("invalid user id")
	}
	if passHash == "" {
		return errors.New("password hash is required")
	}
	_, err := d.sql.ExecContext(ctx, `UPDATE users SET password_hash=?, updated_at=? WHERE id=?`, passHash, nowUnix(), id)
	return err
}

// CreateSession inserts a new session token with expiration.
func (d *DB) CreateSession(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	if token == "" || userID <= 0 {
		return errors.New("invalid session")
	}
	now := nowUnix()
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO sessions(token, user_id, created_at, expires_at)
VALUES(?, ?, ?, ?)
`, token, userID, now, now+int64(ttl.Seconds()))
	return err
}

// GetSession looks up a session by token.
func (d *DB) GetSession(ctx context.Context, token string) (*Session, bool, error) {
	var s Session
	err := d.sql.QueryRowContext(ctx, `
SELECT token, user_id, created_at, expires_at FROM sessions WHERE token=?
`, token).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err == nil {
		return &s, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// DeleteSession removes a session by token.
func (d *DB) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token is required")
	}
	_, err := d.sql.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	return err
}

// DeleteExpiredSessions deletes sessions that have expired.
func (d *DB) DeleteExpiredSessions(ctx context.Context, nowUnix int64) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, nowUnix)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateServer inserts a new server profile and returns its database ID.
func (d *DB) CreateServer(ctx context.Context, p ServerProfile) (int64, error) {
	if p.OwnerID <= 0 || p.Host == "" || p.Port <= 0 || p.Username == "" {
		return 0, errors.New("owner, host, port, and username are required")
	}
	res, err := d.sql.ExecContext(ctx, `
INSERT INTO servers(owner_id, host, port, username, alias, secure, last_working_dir, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
`, p.OwnerID, p.Host, p.Port, p.Username, p.Alias, boolToInt(p.Secure), p.LastWorkingDirectory, nowUnix(), nowUnix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetServerForOwner looks up a server profile by ID, scoped to its owner.
func (d *DB) GetServerForOwner(ctx context.Context, id, ownerID int64) (*ServerProfile, bool, error) {
	var p ServerProfile
	var secure int
	err := d.sql.QueryRowContext(ctx, `
SELECT id, owner_id, host, port, username, alias, secure, last_working_dir, created_at, updated_at
FROM servers WHERE id=? AND owner_id=?
`, id, ownerID).Scan(&p.ID, &p.OwnerID, &p.Host, &p.Port, &p.Username, &p.Alias, &secure, &p.LastWorkingDirectory, &p.CreatedAt, &p.UpdatedAt)
	if err == nil {
		p.Secure = secure != 0
		return &p, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// ListServersForOwner returns all server profiles owned by a user.
func (d *DB) ListServersForOwner(ctx context.Context, ownerID int64) ([]ServerProfile, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT id, owner_id, host, port, username, alias, secure, last_working_dir, created_at, updated_at
FROM servers WHERE owner_id=? ORDER BY alias ASC, id ASC
`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServerProfile
	for rows.Next() {
		var p ServerProfile
		var secure int
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Host, &p.Port, &p.Username, &p.Alias, &secure, &p.LastWorkingDirectory, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Secure = secure != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateServer updates mutable server profile fields.
func (d *DB) UpdateServer(ctx context.Context, p ServerProfile) error {
	if p.ID <= 0 || p.OwnerID <= 0 {
		return errors.New("invalid server id")
	}
	_, err := d.sql.ExecContext(ctx, `
UPDATE servers SET host=?, port=?, username=?, alias=?, secure=?, updated_at=?
WHERE id=? AND owner_id=?
`, p.Host, p.Port, p.Username, p.Alias, boolToInt(p.Secure), nowUnix(), p.ID, p.OwnerID)
	return err
}

// UpdateServerWorkingDirectory persists the last working directory seen for
// a server so the next connect can restore it.
func (d *DB) UpdateServerWorkingDirectory(ctx context.Context, id int64, dir string) error {
	if id <= 0 {
		return errors.New("invalid server id")
	}
	_, err := d.sql.ExecContext(ctx, `UPDATE servers SET last_working_dir=?, updated_at=? WHERE id=?`, dir, nowUnix(), id)
	return err
}

// DeleteServer removes a server profile, scoped to its owner.
func (d *DB) DeleteServer(ctx context.Context, id, ownerID int64) error {
	if id <= 0 || ownerID <= 0 {
		return errors.New("invalid id")
	}
	_, err := d.sql.ExecContext(ctx, `DELETE FROM servers WHERE id=? AND owner_id=?`, id, ownerID)
	return err
}

// boolToInt maps booleans to SQLite-friendly integer flags.
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
