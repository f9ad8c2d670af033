// Package validate contains simple input validation helpers.
package validate

import (
	"errors"
	"regexp"
	"strings"
)

// usernameRe enforces a conservative username pattern.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// aliasRe allows short human-readable server labels.
var aliasRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 ._-]{0,63}$`)

// hostRe matches hostnames and IPv4 literals; IPv6 literals are rejected
// because profile host and port are stored separately.
var hostRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]{0,252}[a-zA-Z0-9])?$`)

// Username validates a username string for length and allowed characters.
func Username(s string) error {
	if !usernameRe.MatchString(s) {
		return errors.New("invalid username")
	}
	return nil
}

// Alias validates a server profile alias.
func Alias(s string) error {
	if !aliasRe.MatchString(strings.TrimSpace(s)) {
		return errors.New("invalid alias")
	}
	return nil
}

// Host validates a server hostname or IPv4 address.
func Host(s string) error {
	if !hostRe.MatchString(s) {
		return errors.New("invalid host")
	}
	return nil
}

// Port validates a TCP port number.
func Port(p int) error {
	if p <= 0 || p > 65535 {
		return errors.New("invalid port")
	}
	return nil
}
