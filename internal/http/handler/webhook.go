package handler

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"prep/internal/results"

	"github.com/sirupsen/logrus"
)

// DefaultWebhookMaxBody bounds a delivery when MaxBody is unset.
const DefaultWebhookMaxBody = 5 << 20

type WebhookHandler struct {
	Correlator *results.Correlator
	// Secret, when set, must match the X-Webhook-Secret header.
	Secret string
	// MaxBody is the largest accepted payload in bytes; larger ones get 413.
	MaxBody int64
	Log     logrus.FieldLogger
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.Secret != "" {
		got := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	limit := h.MaxBody
	if limit <= 0 {
		limit = DefaultWebhookMaxBody
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Log.WithField("limit", tooLarge.Limit).Warn("rejecting oversized webhook payload")
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	stored, err := h.Correlator.Ingest(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stored": stored})
}
