// Package session tracks per-user FTP client state for the lifetime of the
// process: attached server sessions, progress listeners, the cancellation
// flag, and the stream of the in-flight file copy. Nothing here is persisted.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"ftpbridge/internal/ftpx"
)

// maxClientSlots is the number of distinct servers one user may hold
// sessions to at the same time. Transfers need exactly two.
const maxClientSlots = 2

var (
	ErrNotConnected   = fmt.Errorf("no active session for this server")
	ErrMaxClientSlots = fmt.Errorf("a user may hold at most %d concurrent sessions", maxClientSlots)
)

// AbortableStream is the cancellation hook for an in-flight file copy.
// Aborting unblocks both ends of the copy with a defined error.
type AbortableStream interface {
	Abort()
}

// userState is one user's in-memory session state. All fields are guarded
// by mu; operations on different users never contend.
type userState struct {
	mu              sync.Mutex
	clients         map[int64]*ftpx.SessionHandle
	listeners       map[string]ftpx.EventFunc
	cancelRequested bool
	activeStream    AbortableStream
}

// Registry is the process-wide map from user id to session state. It is
// built once at startup and injected into every component that needs it.
type Registry struct {
	logger *slog.Logger

	mu    sync.Mutex
	users map[int64]*userState
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, users: map[int64]*userState{}}
}

// state returns the user's state, creating it when create is set. The
// second return is false when the user has no state and create is unset.
func (r *Registry) state(userID int64, create bool) (*userState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.users[userID]
	if !ok {
		if !create {
			return nil, false
		}
		st = &userState{
			clients:   map[int64]*ftpx.SessionHandle{},
			listeners: map[string]ftpx.EventFunc{},
		}
		r.users[userID] = st
	}
	return st, true
}

// Attach stores a freshly-connected session in one of the user's slots.
// Re-attaching a server id the user already holds replaces the old handle,
// so a reconnect never counts against the slot limit. Every listener the
// user registered before the attach is wired into the new handle.
func (r *Registry) Attach(userID, serverID int64, h *ftpx.SessionHandle) error {
	st, _ := r.state(userID, true)
	st.mu.Lock()
	defer st.mu.Unlock()

	old, replacing := st.clients[serverID]
	if !replacing && len(st.clients) >= maxClientSlots {
		return ErrMaxClientSlots
	}
	if replacing {
		if err := old.Disconnect(); err != nil {
			r.logger.Warn("closing replaced session", "user_id", userID, "server_id", serverID, "error", err)
		}
	}
	st.clients[serverID] = h
	for id, fn := range st.listeners {
		h.AddListener(id, fn)
	}
	return nil
}

// Detach drops the slot for a server id. Absent entries are ignored; the
// handle itself is not disconnected here.
func (r *Registry) Detach(userID, serverID int64) {
	st, ok := r.state(userID, false)
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.clients, serverID)
}

// Get returns the user's session for a server id.
func (r *Registry) Get(userID, serverID int64) (*ftpx.SessionHandle, error) {
	st, ok := r.state(userID, false)
	if !ok {
		return nil, ErrNotConnected
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	h, ok := st.clients[serverID]
	if !ok {
		return nil, ErrNotConnected
	}
	return h, nil
}

// RegisterListener adds a progress callback for the user and wires it into
// every currently-attached session. The returned id unregisters it.
func (r *Registry) RegisterListener(userID int64, fn ftpx.EventFunc) string {
	st, _ := r.state(userID, true)
	st.mu.Lock()
	defer st.mu.Unlock()
	id := uuid.NewString()
	st.listeners[id] = fn
	for _, h := range st.clients {
		h.AddListener(id, fn)
	}
	return id
}

// UnregisterListener removes a callback from the user state and from every
// attached session. Unknown ids are ignored.
func (r *Registry) UnregisterListener(userID int64, id string) {
	st, ok := r.state(userID, false)
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.listeners, id)
	for _, h := range st.clients {
		h.RemoveListener(id)
	}
}

// Broadcast delivers a lifecycle event to every listener of the user.
// Session handles emit their own byte-level progress; this path carries
// the events that are not tied to a single server.
func (r *Registry) Broadcast(userID int64, eventType string, payload []byte) {
	st, ok := r.state(userID, false)
	if !ok {
		return
	}
	st.mu.Lock()
	fns := make([]ftpx.EventFunc, 0, len(st.listeners))
	for _, fn := range st.listeners {
		fns = append(fns, fn)
	}
	st.mu.Unlock()
	for _, fn := range fns {
		fn(eventType, payload)
	}
}

// SetCancellation sets or clears the user's cancellation flag.
func (r *Registry) SetCancellation(userID int64, v bool) {
	st, _ := r.state(userID, true)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cancelRequested = v
}

// CancellationRequested reports the user's cancellation flag.
func (r *Registry) CancellationRequested(userID int64) bool {
	st, ok := r.state(userID, false)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cancelRequested
}

// RequestCancel sets the cancellation flag and force-closes the in-flight
// copy stream, if any, in one step. The running transfer loop observes the
// flag at the next file boundary; the aborted stream fails the current file.
func (r *Registry) RequestCancel(userID int64) {
	st, _ := r.state(userID, true)
	st.mu.Lock()
	st.cancelRequested = true
	stream := st.activeStream
	st.mu.Unlock()
	if stream != nil {
		stream.Abort()
	}
}

// SetActiveStream records the stream of the copy now in flight.
func (r *Registry) SetActiveStream(userID int64, s AbortableStream) {
	st, _ := r.state(userID, true)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeStream = s
}

// ClearActiveStream drops the active-stream handle.
func (r *Registry) ClearActiveStream(userID int64) {
	st, ok := r.state(userID, false)
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeStream = nil
}

// HasState reports whether the user currently has any in-memory state.
// Logout cleanup checks it to skip teardown for users who never connected.
func (r *Registry) HasState(userID int64) bool {
	_, ok := r.state(userID, false)
	return ok
}

// CleanupUser disconnects every attached session and drops the user's
// in-memory state. Disconnect failures are aggregated, not short-circuited,
// so one bad connection never leaks the others.
func (r *Registry) CleanupUser(userID int64) error {
	r.mu.Lock()
	st, ok := r.users[userID]
	delete(r.users, userID)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.activeStream != nil {
		st.activeStream.Abort()
		st.activeStream = nil
	}
	var errs *multierror.Error
	for serverID, h := range st.clients {
		if err := h.Disconnect(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("disconnect server %d: %w", serverID, err))
		}
	}
	st.clients = map[int64]*ftpx.SessionHandle{}
	st.listeners = map[string]ftpx.EventFunc{}
	return errs.ErrorOrNil()
}
