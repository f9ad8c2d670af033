package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ftpbridge/internal/ftpx"
)

type fileItem struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes"`
}

func fileItems(entries []ftpx.FileEntry) []fileItem {
	out := make([]fileItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, fileItem{Name: e.Name, Kind: string(e.Kind), SizeBytes: e.SizeBytes})
	}
	return out
}

func (s *Server) handleFtpConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		ServerID int64  `json:"server_id"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ServerID <= 0 || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "server_id and password are required"})
		return
	}

	wd, entries, err := s.Bridge.Connect(r.Context(), requesterFrom(r.Context()), req.ServerID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"working_directory": wd, "entries": fileItems(entries)})
}

func (s *Server) handleFtpDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		ServerID int64 `json:"server_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid server id"})
		return
	}
	if err := s.Bridge.Disconnect(r.Context(), requesterFrom(r.Context()), req.ServerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

func (s *Server) handleFtpList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	serverID, err := strconv.ParseInt(r.URL.Query().Get("server_id"), 10, 64)
	if err != nil || serverID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid server id"})
		return
	}

	wd, entries, err := s.Bridge.List(r.Context(), requesterFrom(r.Context()), serverID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"working_directory": wd, "entries": fileItems(entries)})
}

func (s *Server) handleFtpMkdir(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		ServerID int64  `json:"server_id"`
		Path     string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID <= 0 || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "server_id and path are required"})
		return
	}
	if err := s.Bridge.CreateDirectory(r.Context(), requesterFrom(r.Context()), req.ServerID, req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

func (s *Server) handleFtpDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		ServerID int64  `json:"server_id"`
		Path     string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID <= 0 || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "server_id and path are required"})
		return
	}
	if err := s.Bridge.DeleteEntry(r.Context(), requesterFrom(r.Context()), req.ServerID, req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}
