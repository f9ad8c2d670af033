package ftpx

import (
	"path"
	"strings"
)

// Remote FTP paths are POSIX-style regardless of the local OS, so these
// helpers build on "path" rather than "path/filepath".

// CleanPath normalizes a remote path to an absolute, cleaned form.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// JoinPath joins a remote directory and a child name into an absolute path.
func JoinPath(dir, name string) string {
	return CleanPath(path.Join(dir, name))
}

// SplitPath splits an absolute remote path into its parent directory and
// final element. The executor uses this to re-resolve a planned file against
// a fresh listing of its parent.
func SplitPath(p string) (dir, name string) {
	p = CleanPath(p)
	return path.Dir(p), path.Base(p)
}
