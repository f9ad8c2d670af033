package ftpx

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"ftpbridge/internal/db"
)

// Conn is the subset of the FTP client transport the orchestrator needs.
// *ftp.ServerConn satisfies it through the serverConn adapter; tests
// substitute fakes.
type Conn interface {
	Login(user, password string) error
	CurrentDir() (string, error)
	ChangeDir(p string) error
	MakeDir(p string) error
	List(p string) ([]*ftp.Entry, error)
	Retr(p string) (io.ReadCloser, error)
	Stor(p string, r io.Reader) error
	Delete(p string) error
	Quit() error
}

// serverConn adapts *ftp.ServerConn to Conn. Only Retr needs a wrapper
// because its concrete return type is *ftp.Response.
type serverConn struct {
	*ftp.ServerConn
}

func (c *serverConn) Retr(p string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(p)
	if err != nil {
		return nil, err
	}
	return r, nil
}

const defaultDialTimeout = 30 * time.Second

// Dialer opens authenticated FTP sessions for server profiles.
type Dialer struct {
	Timeout time.Duration
	Logger  *slog.Logger

	// DialFunc overrides the network dial. Tests inject fakes here.
	DialFunc func(addr string, secure, insecureSkipVerify bool) (Conn, error)
}

// Connect dials and authenticates a session for the given profile.
//
// When the profile requires TLS and the handshake fails on certificate
// verification, the dial is retried exactly once with verification disabled;
// any further failure propagates unchanged. Login failures map to
// ErrInvalidCredentials or ErrUnknownFtp.
func (d *Dialer) Connect(ctx context.Context, profile *db.ServerProfile, password string) (*SessionHandle, error) {
	addr := net.JoinHostPort(profile.Host, strconv.Itoa(profile.Port))

	conn, err := d.dial(ctx, addr, profile.Host, profile.Secure, false)
	if err != nil && profile.Secure && isCertVerificationError(err) {
		d.logger().Warn("certificate verification failed, retrying without verification",
			"host", profile.Host, "port", profile.Port, "error", err)
		conn, err = d.dial(ctx, addr, profile.Host, true, true)
	}
	if err != nil {
		return nil, err
	}

	if err := conn.Login(profile.Username, password); err != nil {
		_ = conn.Quit()
		return nil, mapLoginError(err)
	}
	return NewSessionHandle(profile.ID, conn, d.logger()), nil
}

func (d *Dialer) dial(ctx context.Context, addr, host string, secure, insecureSkipVerify bool) (Conn, error) {
	if d.DialFunc != nil {
		return d.DialFunc(addr, secure, insecureSkipVerify)
	}
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(d.timeout()),
	}
	if secure {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         host,
			InsecureSkipVerify: insecureSkipVerify,
		}))
	}
	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &serverConn{c}, nil
}

func (d *Dialer) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return defaultDialTimeout
}

func (d *Dialer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
