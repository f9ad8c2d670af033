package httpapi

import (
	"errors"
	"net/http"

	"ftpbridge/internal/bridge"
	"ftpbridge/internal/ftpx"
	"ftpbridge/internal/session"
	"ftpbridge/internal/transfer"
)

// statusFor maps domain error kinds to HTTP status codes at the boundary.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ftpx.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, bridge.ErrUnknownServer),
		errors.Is(err, ftpx.ErrPathDoesNotExist),
		errors.Is(err, ftpx.ErrFailedToChangeDirectory):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrMaxClientSlots),
		errors.Is(err, transfer.ErrNoTransferState):
		return http.StatusConflict
	case errors.Is(err, transfer.ErrUnsupportedFileType):
		return http.StatusBadRequest
	case errors.Is(err, ftpx.ErrUnknownFtp):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
