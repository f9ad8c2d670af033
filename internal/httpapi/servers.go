package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"ftpbridge/internal/db"
	"ftpbridge/internal/validate"
)

type serverItem struct {
	ID                   int64  `json:"id"`
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	Username             string `json:"username"`
	Alias                string `json:"alias"`
	Secure               bool   `json:"secure"`
	LastWorkingDirectory string `json:"last_working_directory"`
}

func serverItemFrom(p db.ServerProfile) serverItem {
	return serverItem{
		ID:                   p.ID,
		Host:                 p.Host,
		Port:                 p.Port,
		Username:             p.Username,
		Alias:                p.Alias,
		Secure:               p.Secure,
		LastWorkingDirectory: p.LastWorkingDirectory,
	}
}

type serverRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Alias    string `json:"alias"`
	Secure   bool   `json:"secure"`
}

func (req *serverRequest) validate() error {
	if err := validate.Host(req.Host); err != nil {
		return err
	}
	if err := validate.Port(req.Port); err != nil {
		return err
	}
	if err := validate.Username(req.Username); err != nil {
		return err
	}
	return validate.Alias(req.Alias)
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	requester := requesterFrom(r.Context())
	switch r.Method {
	case http.MethodGet:
		profiles, err := s.DB.ListServersForOwner(r.Context(), requester.UserID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
			return
		}
		out := make([]serverItem, 0, len(profiles))
		for _, p := range profiles {
			out = append(out, serverItemFrom(p))
		}
		writeJSON(w, http.StatusOK, map[string]any{"servers": out})
	case http.MethodPost:
		var req serverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if err := req.validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		id, err := s.DB.CreateServer(r.Context(), db.ServerProfile{
			OwnerID:  requester.UserID,
			Host:     req.Host,
			Port:     req.Port,
			Username: req.Username,
			Alias:    strings.TrimSpace(req.Alias),
			Secure:   req.Secure,
		})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "create server failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleServerByID(w http.ResponseWriter, r *http.Request) {
	requester := requesterFrom(r.Context())
	idStr := strings.TrimPrefix(r.URL.Path, "/api/servers/")
	serverID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || serverID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid server id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, ok, err := s.DB.GetServerForOwner(r.Context(), serverID, requester.UserID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown server"})
			return
		}
		writeJSON(w, http.StatusOK, serverItemFrom(*p))
	case http.MethodPut:
		var req serverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if err := req.validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if _, ok, err := s.DB.GetServerForOwner(r.Context(), serverID, requester.UserID); err != nil || !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown server"})
			return
		}
		err = s.DB.UpdateServer(r.Context(), db.ServerProfile{
			ID:       serverID,
			OwnerID:  requester.UserID,
			Host:     req.Host,
			Port:     req.Port,
			Username: req.Username,
			Alias:    strings.TrimSpace(req.Alias),
			Secure:   req.Secure,
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "update failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
	case http.MethodDelete:
		if err := s.DB.DeleteServer(r.Context(), serverID, requester.UserID); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "delete failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}
