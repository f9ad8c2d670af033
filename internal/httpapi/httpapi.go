// Package httpapi serves the JSON API: account login, server-profile CRUD,
// FTP session operations, transfer control, and the SSE progress feed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"ftpbridge/internal/auth"
	"ftpbridge/internal/bridge"
	"ftpbridge/internal/db"
)

const (
	sessionCookie = "fb_session"
	sessionTTL    = 12 * time.Hour
)

type Server struct {
	DB       *db.DB
	Bridge   *bridge.Service
	Logger   *slog.Logger
	BindAddr string
	Port     int
	CertPath string
	KeyPath  string
}

// Handler builds the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)

	mux.HandleFunc("/api/servers", s.withUser(s.handleServers))
	mux.HandleFunc("/api/servers/", s.withUser(s.handleServerByID))

	mux.HandleFunc("/api/ftp/connect", s.withUser(s.handleFtpConnect))
	mux.HandleFunc("/api/ftp/disconnect", s.withUser(s.handleFtpDisconnect))
	mux.HandleFunc("/api/ftp/list", s.withUser(s.handleFtpList))
	mux.HandleFunc("/api/ftp/mkdir", s.withUser(s.handleFtpMkdir))
	mux.HandleFunc("/api/ftp/delete", s.withUser(s.handleFtpDelete))

	mux.HandleFunc("/api/transfer", s.withUser(s.handleTransfer))
	mux.HandleFunc("/api/transfer/cancel", s.withUser(s.handleTransferCancel))
	mux.HandleFunc("/api/transfer/activity", s.withUser(s.handleTransferActivity))
	mux.HandleFunc("/api/transfer/clear", s.withUser(s.handleTransferClear))

	mux.HandleFunc("/api/events", s.withUser(s.handleEvents))

	return withSecurityHeaders(s.withRequestLog(s.withRecover(mux)))
}

// ListenAndServe serves the API until the listener fails. TLS is used when
// both a certificate and key path are configured.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.DB == nil || s.Bridge == nil {
		return errors.New("db and bridge are required")
	}

	addr := s.BindAddr + ":" + strconv.Itoa(s.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if s.CertPath != "" && s.KeyPath != "" {
		return httpServer.ListenAndServeTLS(s.CertPath, s.KeyPath)
	}
	return httpServer.ListenAndServe()
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing credentials"})
		return
	}

	ctx := r.Context()
	u, ok, err := s.DB.GetUserByUsername(ctx, req.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
		return
	}
	if !ok || !u.Enabled {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	okPw, err := auth.VerifyPassword(req.Password, u.PassHash)
	if err != nil || !okPw {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	tok, err := auth.NewToken(32)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
		return
	}
	if err := s.DB.CreateSession(ctx, tok, u.ID, sessionTTL); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
		return
	}

	setSessionCookie(w, tok)
	writeJSON(w, http.StatusOK, map[string]any{"ok": "1", "username": u.Username})
}

// handleLogout ends the browser session and tears down the user's FTP
// sessions and transfer record. An expired or missing cookie still clears
// the cookie and reports success.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	ctx := r.Context()
	if tok, ok := readSessionCookie(r); ok {
		if sess, ok, err := s.DB.GetSession(ctx, tok); err == nil && ok {
			if u, ok, err := s.DB.GetUserByID(ctx, sess.UserID); err == nil && ok {
				req := bridge.Requester{UserID: u.ID, Username: u.Username}
				if err := s.Bridge.CleanupUser(ctx, req); err != nil {
					s.logger().Warn("logout cleanup", "user", u.Username, "error", err)
				}
			}
		}
		_ = s.DB.DeleteSession(ctx, tok)
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

type ctxKey string

const ctxRequester ctxKey = "requester"

// withUser authenticates the session cookie and stores the resolved
// requester on the request context.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := readSessionCookie(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
		sess, ok, err := s.DB.GetSession(r.Context(), tok)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
			return
		}
		if !ok || sess.ExpiresAt <= time.Now().Unix() {
			clearSessionCookie(w)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}

		u, ok, err := s.DB.GetUserByID(r.Context(), sess.UserID)
		if err != nil || !ok || !u.Enabled {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}

		req := bridge.Requester{UserID: u.ID, Username: u.Username}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxRequester, req)))
	}
}

func requesterFrom(ctx context.Context) bridge.Requester {
	req, _ := ctx.Value(ctxRequester).(bridge.Requester)
	return req
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func readSessionCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-content-type-options", "nosniff")
		w.Header().Set("x-frame-options", "DENY")
		w.Header().Set("referrer-policy", "no-referrer")
		if r.TLS != nil {
			w.Header().Set("strict-transport-security", "max-age=31536000")
		}
		next.ServeHTTP(w, r)
	})
}
