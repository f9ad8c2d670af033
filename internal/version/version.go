// Package version carries the build version string.
package version

const Version = "0.1.0"
