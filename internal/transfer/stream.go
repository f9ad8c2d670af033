package transfer

import (
	"errors"
	"io"
	"sync"
)

// ErrStreamClosed marks a copy stream that was force-closed before the file
// finished, usually because the transfer was canceled.
var ErrStreamClosed = errors.New("transfer stream closed")

// Stream is the in-memory duplex channel for one file copy. The download
// side writes into it, the upload side reads from it, and the cancellation
// path can abort both at once.
type Stream struct {
	r *io.PipeReader
	w *io.PipeWriter

	abortOnce sync.Once
}

func NewStream() *Stream {
	r, w := io.Pipe()
	return &Stream{r: r, w: w}
}

func (s *Stream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.w.Write(p) }

// CloseWrite finishes the write side. A nil err is a clean end of file; a
// non-nil err surfaces to the reader in place of EOF.
func (s *Stream) CloseWrite(err error) {
	if err != nil {
		_ = s.w.CloseWithError(err)
		return
	}
	_ = s.w.Close()
}

// CloseRead tears down the read side so a blocked writer fails with err
// instead of hanging.
func (s *Stream) CloseRead(err error) {
	_ = s.r.CloseWithError(err)
}

// Abort force-closes both ends with ErrStreamClosed. It is safe to call
// concurrently with reads and writes, and more than once.
func (s *Stream) Abort() {
	s.abortOnce.Do(func() {
		_ = s.w.CloseWithError(ErrStreamClosed)
		_ = s.r.CloseWithError(ErrStreamClosed)
	})
}
