package handler

import (
	"net/http"

	"prep/internal/auth"
)

type MeHandler struct{}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_id": owner.ID,
		"email":    owner.Email,
		"name":     owner.Name,
	})
}
