package handler

import (
	"net/http"

	"prep/internal/auth"
	"prep/internal/interview"
	"prep/internal/results"

	"github.com/go-chi/chi/v5"
)

type ResultHandler struct {
	Correlator *results.Correlator
}

func (h *ResultHandler) Latest(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	res, err := h.Correlator.GetLatestForOwner(r.Context(), owner.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ResultHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	res, err := h.Correlator.GetLatest(r.Context(), chi.URLParam(r, "callId"))
	if err != nil {
		writeError(w, err)
		return
	}
	// someone else's result looks the same as a missing one
	if res.OwnerID != "" && res.OwnerID != owner.ID {
		writeError(w, interview.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
