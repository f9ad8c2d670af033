// Package ftpxtest provides an in-memory fake FTP connection for tests.
// The fake models one remote server as a map of absolute POSIX paths.
package ftpxtest

import (
	"bytes"
	"io"
	"net/textproto"
	"sort"
	"strings"
	"sync"

	"github.com/jlaffaye/ftp"

	"ftpbridge/internal/ftpx"
)

// FakeConn implements ftpx.Conn against in-memory state. Directories and
// files live in separate maps; files map to their contents.
type FakeConn struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	links    map[string]bool
	cwd      string
	LoggedIn bool
	Quits    int

	// FailLogin, when set, is returned by Login.
	FailLogin error
	// FailRetr maps paths to forced download errors.
	FailRetr map[string]error
	// FailStor maps paths to forced upload errors.
	FailStor map[string]error
}

// NewFakeConn returns an empty fake rooted at "/".
func NewFakeConn() *FakeConn {
	return &FakeConn{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
		links: map[string]bool{},
		cwd:   "/",
	}
}

// AddLink records a symlink entry and creates its parent directories.
func (f *FakeConn) AddLink(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = ftpx.CleanPath(p)
	f.links[p] = true
	dir, _ := ftpx.SplitPath(p)
	for dir != "/" {
		f.dirs[dir] = true
		dir, _ = ftpx.SplitPath(dir)
	}
}

// AddFile stores a file and creates its parent directories.
func (f *FakeConn) AddFile(p string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addFileLocked(p, body)
}

func (f *FakeConn) addFileLocked(p string, body []byte) {
	p = ftpx.CleanPath(p)
	f.files[p] = body
	dir, _ := ftpx.SplitPath(p)
	for dir != "/" {
		f.dirs[dir] = true
		dir, _ = ftpx.SplitPath(dir)
	}
}

// AddDir creates a directory and its parents.
func (f *FakeConn) AddDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = ftpx.CleanPath(p)
	for p != "/" {
		f.dirs[p] = true
		p, _ = ftpx.SplitPath(p)
	}
}

// FileBody returns the stored contents of a file, if present.
func (f *FakeConn) FileBody(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[ftpx.CleanPath(p)]
	return b, ok
}

// HasDir reports whether a directory exists.
func (f *FakeConn) HasDir(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[ftpx.CleanPath(p)]
}

func (f *FakeConn) Login(user, password string) error {
	if f.FailLogin != nil {
		return f.FailLogin
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LoggedIn = true
	return nil
}

func (f *FakeConn) CurrentDir() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cwd, nil
}

func (f *FakeConn) ChangeDir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = ftpx.CleanPath(p)
	if !f.dirs[p] {
		return &textproto.Error{Code: 550, Msg: "no such directory"}
	}
	f.cwd = p
	return nil
}

func (f *FakeConn) MakeDir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = ftpx.CleanPath(p)
	if f.dirs[p] {
		return &textproto.Error{Code: 550, Msg: "already exists"}
	}
	f.dirs[p] = true
	return nil
}

func (f *FakeConn) List(p string) ([]*ftp.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = ftpx.CleanPath(p)
	if !f.dirs[p] {
		return nil, &textproto.Error{Code: 550, Msg: "no such directory"}
	}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	var out []*ftp.Entry
	for fp, body := range f.files {
		if !strings.HasPrefix(fp, prefix) {
			continue
		}
		rest := strings.TrimPrefix(fp, prefix)
		if !strings.Contains(rest, "/") {
			out = append(out, &ftp.Entry{Name: rest, Type: ftp.EntryTypeFile, Size: uint64(len(body))})
		}
	}
	for dp := range f.dirs {
		if !strings.HasPrefix(dp, prefix) || dp == p {
			continue
		}
		rest := strings.TrimPrefix(dp, prefix)
		if !strings.Contains(rest, "/") {
			out = append(out, &ftp.Entry{Name: rest, Type: ftp.EntryTypeFolder})
		}
	}
	for lp := range f.links {
		if !strings.HasPrefix(lp, prefix) {
			continue
		}
		rest := strings.TrimPrefix(lp, prefix)
		if !strings.Contains(rest, "/") {
			out = append(out, &ftp.Entry{Name: rest, Type: ftp.EntryTypeLink})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeConn) Retr(p string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = ftpx.CleanPath(p)
	if err := f.FailRetr[p]; err != nil {
		return nil, err
	}
	body, ok := f.files[p]
	if !ok {
		return nil, &textproto.Error{Code: 550, Msg: "no such file"}
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *FakeConn) Stor(p string, r io.Reader) error {
	if err := f.FailStor[ftpx.CleanPath(p)]; err != nil {
		// Drain so a piped writer is not left blocked.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addFileLocked(p, body)
	return nil
}

func (f *FakeConn) Delete(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = ftpx.CleanPath(p)
	if _, ok := f.files[p]; !ok {
		return &textproto.Error{Code: 550, Msg: "no such file"}
	}
	delete(f.files, p)
	return nil
}

func (f *FakeConn) Quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Quits++
	return nil
}
