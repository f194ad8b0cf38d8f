package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"prep/internal/auth"
	"prep/internal/callid"
	"prep/internal/interview"
	"prep/internal/provider"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// CallStarter opens a session with the voice provider.
type CallStarter interface {
	StartCall(ctx context.Context, req provider.StartCallRequest) (*provider.StartCallResponse, error)
}

type CallHandler struct {
	Broker   *callid.Broker
	Provider CallStarter
	Log      logrus.FieldLogger
}

type startCallReq struct {
	InterviewID *uint64 `json:"interview_id"`
	Name        string  `json:"name"`
	Education   string  `json:"education"`
	Experience  string  `json:"experience"`
	JobRole     string  `json:"job_role"`
	CompanyName string  `json:"company_name"`
}

func (h *CallHandler) Start(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	var req startCallReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = owner.Name
	}

	session := interview.SessionMetadata{
		InterviewID: req.InterviewID,
		Name:        strings.TrimSpace(req.Name),
		Education:   strings.TrimSpace(req.Education),
		Experience:  strings.TrimSpace(req.Experience),
		JobRole:     strings.TrimSpace(req.JobRole),
		CompanyName: strings.TrimSpace(req.CompanyName),
	}

	placeholderID, err := h.Broker.Begin(r.Context(), owner, session)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.Provider.StartCall(r.Context(), provider.StartCallRequest{
		CallID:      placeholderID,
		OwnerID:     owner.ID,
		Name:        session.Name,
		Education:   session.Education,
		Experience:  session.Experience,
		JobRole:     session.JobRole,
		CompanyName: session.CompanyName,
	})
	if err != nil {
		// the placeholder row stays; a webhook echoing it can still be adopted
		h.Log.WithError(err).WithField("placeholder_id", placeholderID).Warn("provider start call failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":          "provider start call failed",
			"placeholder_id": placeholderID,
		})
		return
	}

	callID := placeholderID
	if resp.ProviderCallID != "" && resp.ProviderCallID != placeholderID {
		if _, err := h.Broker.Promote(r.Context(), placeholderID, resp.ProviderCallID); err != nil {
			writeError(w, err)
			return
		}
		callID = resp.ProviderCallID
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"call_id":        callID,
		"placeholder_id": placeholderID,
		"provider":       resp.Raw,
	})
}

type promoteReq struct {
	ProviderCallID string `json:"provider_call_id"`
}

func (h *CallHandler) Promote(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	placeholderID := chi.URLParam(r, "placeholderId")

	var req promoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	// callers may only promote their own sessions
	if ph, err := h.Broker.Store.FindResult(r.Context(), placeholderID); err == nil && ph.OwnerID != owner.ID {
		h.Log.WithFields(logrus.Fields{
			"placeholder_id": placeholderID,
			"owner_id":       ph.OwnerID,
			"caller_id":      owner.ID,
		}).Warn("promotion by non-owner refused")
		writeError(w, interview.ErrNotFound)
		return
	}

	res, err := h.Broker.Promote(r.Context(), placeholderID, req.ProviderCallID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
