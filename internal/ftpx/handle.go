// Package ftpx wraps one authenticated FTP client connection per remote
// server and translates transport results into domain operations.
package ftpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jlaffaye/ftp"
)

// EntryKind classifies a remote directory entry.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
	KindSymlink   EntryKind = "symlink"
	KindUnknown   EntryKind = "unknown"
)

// FileEntry is one entry of a remote directory listing.
type FileEntry struct {
	Name      string    `json:"name"`
	Kind      EntryKind `json:"kind"`
	SizeBytes int64     `json:"size_bytes"`
}

// EventProgress is the event type emitted while bytes move through a handle.
const EventProgress = "progress"

// EventFunc receives one push event: a type tag and a JSON payload.
type EventFunc func(eventType string, payload []byte)

// progressChunk is how many bytes flow between progress events.
const progressChunk = 256 << 10

var errDisconnected = errors.New("session is disconnected")

// SessionHandle is one live authenticated connection to one server.
// It is exclusively owned by one user's session slot.
type SessionHandle struct {
	serverID int64
	logger   *slog.Logger

	mu     sync.Mutex
	conn   Conn
	closed bool

	lmu       sync.Mutex
	listeners map[string]EventFunc
}

// NewSessionHandle wraps an authenticated connection. The dialer calls this
// after login; tests call it with fake connections.
func NewSessionHandle(serverID int64, conn Conn, logger *slog.Logger) *SessionHandle {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandle{
		serverID:  serverID,
		conn:      conn,
		logger:    logger,
		listeners: make(map[string]EventFunc),
	}
}

// ServerID returns the profile id this handle is connected to.
func (h *SessionHandle) ServerID() int64 { return h.serverID }

// AddListener wires a progress listener into this handle.
func (h *SessionHandle) AddListener(id string, fn EventFunc) {
	h.lmu.Lock()
	defer h.lmu.Unlock()
	h.listeners[id] = fn
}

// RemoveListener detaches a progress listener; unknown ids are ignored.
func (h *SessionHandle) RemoveListener(id string) {
	h.lmu.Lock()
	defer h.lmu.Unlock()
	delete(h.listeners, id)
}

func (h *SessionHandle) connection() (Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errDisconnected
	}
	return h.conn, nil
}

// WorkingDirectory returns the session's current remote directory.
func (h *SessionHandle) WorkingDirectory() (string, error) {
	c, err := h.connection()
	if err != nil {
		return "", err
	}
	wd, err := c.CurrentDir()
	if err != nil {
		return "", fmt.Errorf("pwd: %w", err)
	}
	return CleanPath(wd), nil
}

// ChangeDirectory moves the session to path.
func (h *SessionHandle) ChangeDirectory(p string) error {
	c, err := h.connection()
	if err != nil {
		return err
	}
	if err := c.ChangeDir(p); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFailedToChangeDirectory, p, err)
	}
	return nil
}

// List returns the entries of one remote directory. It never recurses.
func (h *SessionHandle) List(p string) ([]FileEntry, error) {
	c, err := h.connection()
	if err != nil {
		return nil, err
	}
	raw, err := c.List(p)
	if err != nil {
		return nil, mapPathError(err, p)
	}
	out := make([]FileEntry, 0, len(raw))
	for _, e := range raw {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, entryFromFTP(e))
	}
	return out, nil
}

// EnsureDirectory creates path if absent. Re-creating an existing directory
// is not an error.
func (h *SessionHandle) EnsureDirectory(p string) error {
	c, err := h.connection()
	if err != nil {
		return err
	}
	if err := c.MakeDir(p); err != nil {
		// MKD on an existing directory answers 550; confirm it is listable
		// before treating the failure as real.
		if _, lerr := c.List(p); lerr == nil {
			return nil
		}
		return mapPathError(err, p)
	}
	return nil
}

// EnsureDirectoryAndEnter creates path if absent, then changes into it.
func (h *SessionHandle) EnsureDirectoryAndEnter(p string) error {
	c, err := h.connection()
	if err != nil {
		return err
	}
	// Creation failure is tolerated here; the follow-up cd decides whether
	// the directory is actually usable.
	_ = c.MakeDir(p)
	if err := c.ChangeDir(p); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFailedToChangeDirectory, p, err)
	}
	return nil
}

// DownloadInto streams the remote file at path into sink, emitting progress
// events as bytes flow.
func (h *SessionHandle) DownloadInto(sink io.Writer, p string) error {
	c, err := h.connection()
	if err != nil {
		return err
	}
	r, err := c.Retr(p)
	if err != nil {
		return mapPathError(err, p)
	}
	defer r.Close()

	cw := &countingWriter{w: sink, handle: h, path: p}
	if _, err := io.Copy(cw, r); err != nil {
		return fmt.Errorf("download %s: %w", p, err)
	}
	cw.flush()
	return nil
}

// UploadFrom streams bytes from source into the remote file at path.
func (h *SessionHandle) UploadFrom(source io.Reader, p string) error {
	c, err := h.connection()
	if err != nil {
		return err
	}
	if err := c.Stor(p, source); err != nil {
		return fmt.Errorf("upload %s: %w", p, mapPathError(err, p))
	}
	return nil
}

// DeleteEntry removes the remote file at path.
func (h *SessionHandle) DeleteEntry(p string) error {
	c, err := h.connection()
	if err != nil {
		return err
	}
	if err := c.Delete(p); err != nil {
		return mapPathError(err, p)
	}
	return nil
}

// Disconnect releases the underlying connection. It is idempotent.
func (h *SessionHandle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.conn.Quit()
}

// progressPayload is the JSON body of a progress event.
type progressPayload struct {
	ServerID         int64  `json:"server_id"`
	Path             string `json:"path"`
	BytesTransferred int64  `json:"bytes_transferred"`
}

func (h *SessionHandle) emitProgress(p string, bytes int64) {
	h.lmu.Lock()
	fns := make([]EventFunc, 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.lmu.Unlock()
	if len(fns) == 0 {
		return
	}
	body, err := json.Marshal(progressPayload{ServerID: h.serverID, Path: p, BytesTransferred: bytes})
	if err != nil {
		h.logger.Warn("dropping progress event", "path", p, "error", err)
		return
	}
	for _, fn := range fns {
		fn(EventProgress, body)
	}
}

// countingWriter forwards writes and emits a progress event every
// progressChunk bytes, plus a final one on flush.
type countingWriter struct {
	w         io.Writer
	handle    *SessionHandle
	path      string
	total     int64
	lastEmit  int64
	anyWrites bool
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.total += int64(n)
	cw.anyWrites = true
	if cw.total-cw.lastEmit >= progressChunk {
		cw.lastEmit = cw.total
		cw.handle.emitProgress(cw.path, cw.total)
	}
	return n, err
}

func (cw *countingWriter) flush() {
	if cw.anyWrites && cw.total != cw.lastEmit {
		cw.handle.emitProgress(cw.path, cw.total)
	}
}

func entryFromFTP(e *ftp.Entry) FileEntry {
	kind := KindUnknown
	switch e.Type {
	case ftp.EntryTypeFile:
		kind = KindFile
	case ftp.EntryTypeFolder:
		kind = KindDirectory
	case ftp.EntryTypeLink:
		kind = KindSymlink
	}
	return FileEntry{Name: e.Name, Kind: kind, SizeBytes: int64(e.Size)}
}
