package httpapi

import (
	"encoding/json"
	"net/http"

	"ftpbridge/internal/db"
)

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		SourceServerID      int64  `json:"source_server_id"`
		DestinationServerID int64  `json:"destination_server_id"`
		Target              string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.SourceServerID <= 0 || req.DestinationServerID <= 0 || req.Target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source, destination and target are required"})
		return
	}
	if req.SourceServerID == req.DestinationServerID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source and destination must differ"})
		return
	}

	err := s.Bridge.PlanAndExecuteTransfer(r.Context(), requesterFrom(r.Context()),
		req.SourceServerID, req.DestinationServerID, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

func (s *Server) handleTransferCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	s.Bridge.CancelTransfer(requesterFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

type mappingItem struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func mappingItems(ms []db.PathMapping) []mappingItem {
	out := make([]mappingItem, 0, len(ms))
	for _, m := range ms {
		out = append(out, mappingItem{Src: m.Src, Dst: m.Dst})
	}
	return out
}

func (s *Server) handleTransferActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	rec, err := s.Bridge.TransferActivity(r.Context(), requesterFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]any{"activity": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": map[string]any{
		"source_server_id": rec.SourceServerID,
		"target":           rec.Target,
		"pending":          mappingItems(rec.Pending),
		"current":          mappingItems(rec.Current),
		"success":          mappingItems(rec.Success),
		"failed":           mappingItems(rec.Failed),
	}})
}

func (s *Server) handleTransferClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := s.Bridge.ClearTransferActivity(r.Context(), requesterFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}
