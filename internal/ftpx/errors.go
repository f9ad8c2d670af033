package ftpx

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/textproto"
)

// Error kinds surfaced by FTP session operations. Callers match them with
// errors.Is; the HTTP layer maps them to status codes.
var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrUnknownFtp              = errors.New("unknown ftp error")
	ErrFailedToChangeDirectory = errors.New("failed to change directory")
	ErrPathDoesNotExist        = errors.New("path does not exist")
)

// FTP reply codes used for error mapping.
const (
	codeNotLoggedIn     = 530
	codeFileUnavailable = 550
)

// mapLoginError translates a failed LOGIN into a domain error kind.
func mapLoginError(err error) error {
	var perr *textproto.Error
	if errors.As(err, &perr) {
		if perr.Code == codeNotLoggedIn {
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, perr.Msg)
		}
		return fmt.Errorf("%w: %d %s", ErrUnknownFtp, perr.Code, perr.Msg)
	}
	return err
}

// mapPathError translates a failed path-addressed operation. 550 means the
// server could not act on the named path.
func mapPathError(err error, p string) error {
	var perr *textproto.Error
	if errors.As(err, &perr) {
		if perr.Code == codeFileUnavailable {
			return fmt.Errorf("%w: %s", ErrPathDoesNotExist, p)
		}
		return fmt.Errorf("%w: %d %s", ErrUnknownFtp, perr.Code, perr.Msg)
	}
	return err
}

// isCertVerificationError reports whether a dial failed because the server
// certificate could not be verified (self-signed or bad leaf signature).
func isCertVerificationError(err error) bool {
	var vErr *tls.CertificateVerificationError
	if errors.As(err, &vErr) {
		return true
	}
	var uaErr x509.UnknownAuthorityError
	if errors.As(err, &uaErr) {
		return true
	}
	var ciErr x509.CertificateInvalidError
	if errors.As(err, &ciErr) {
		return true
	}
	var hnErr x509.HostnameError
	return errors.As(err, &hnErr)
}
