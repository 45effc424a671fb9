package api

import (
	"fmt"
	"net/http"
	"strconv"
)

const defaultStatusLimit = 50

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data := make([]map[string]any, 0, len(list))
	for _, u := range list {
		data = append(data, map[string]any{
			"id":         u.ID.String(),
			"username":   u.Username,
			"enabled":    u.Enabled,
			"is_admin":   u.IsAdmin,
			"created_at": u.CreatedAt.Format(timeLayout),
		})
	}
	writeData(w, http.StatusOK, fmt.Sprintf("Found %d users", len(data)), len(data), data)
}

func (s *Server) listStatus(w http.ResponseWriter, r *http.Request) {
	limit := defaultStatusLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.status.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, fmt.Sprintf("Found %d status entries", len(entries)), len(entries), entries)
}
