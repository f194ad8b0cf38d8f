package handler

import (
	"net/http"

	"prep/internal/auth"
	"prep/internal/reminders"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type NotificationHandler struct {
	Sink  *reminders.NotificationSink
	Email reminders.EmailSink
	Log   logrus.FieldLogger
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.Sink.List(owner.Email))
}

// Acknowledge always succeeds; acknowledging twice is harmless.
func (h *NotificationHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	// only the owner may clear it, but the answer is the same either way
	if n, ok := h.Sink.Get(id); ok && n.OwnerEmail == owner.Email {
		h.Sink.Acknowledge(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

func (h *NotificationHandler) TestEmail(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())

	subject, body := reminders.RenderTestEmail()
	if err := h.Email.Send(r.Context(), owner.Email, subject, body); err != nil {
		h.Log.WithError(err).WithField("to", owner.Email).Warn("test email failed")
		http.Error(w, "email failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true, "to": owner.Email})
}
