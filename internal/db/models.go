// Package db defines persistence models for ftpbridge.
package db

// User represents an account that can own server profiles and transfers.
type User struct {
	ID        int64
	Username  string
	PassHash  string
	Enabled   bool
	CreatedAt int64
	UpdatedAt int64
}

// Session represents an authentication session token.
type Session struct {
	Token     string
	UserID    int64
	CreatedAt int64
	ExpiresAt int64
}

// ServerProfile describes one remote FTP server owned by a user.
// (Host, Port, Username) is unique per owner.
type ServerProfile struct {
	ID                   int64
	OwnerID              int64
	Host                 string
	Port                 int
	Username             string
	Alias                string
	Secure               bool
	LastWorkingDirectory string
	CreatedAt            int64
	UpdatedAt            int64
}

// PathMapping maps one absolute source path to one absolute destination path.
type PathMapping struct {
	Src string
	Dst string
}

// TransferActivity is the durable record of one in-flight-or-completed
// transfer for a user. Every planned path lives in exactly one of the four
// lists; Pending keeps plan order and Current holds at most one entry.
type TransferActivity struct {
	SourceServerID int64
	Target         string
	Pending        []PathMapping
	Current        []PathMapping
	Success        []PathMapping
	Failed         []PathMapping
}
