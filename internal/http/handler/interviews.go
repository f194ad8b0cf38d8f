package handler

import (
	"net/http"
	"strconv"

	"prep/internal/auth"
	"prep/internal/interview"

	"github.com/go-chi/chi/v5"
)

type InterviewHandler struct {
	Store interview.Store
}

// Done marks an interview completed. Repeating it is a no-op.
func (h *InterviewHandler) Done(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.Store.MarkInterviewDone(r.Context(), owner.ID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "done": true})
}
