package http

import (
	"net/http"

	"prep/internal/auth"
	"prep/internal/callid"
	"prep/internal/config"
	"prep/internal/http/handler"
	mw "prep/internal/http/middleware"
	"prep/internal/interview"
	"prep/internal/reminders"
	"prep/internal/results"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Deps are the long-lived components the HTTP surface talks to.
type Deps struct {
	Store         interview.Store
	Correlator    *results.Correlator
	Broker        *callid.Broker
	Notifications *reminders.NotificationSink
	Email         reminders.EmailSink
	Provider      handler.CallStarter
	Log           logrus.FieldLogger
}

func NewRouter(cfg config.Config, d Deps, jwtSvc *auth.JWT) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	wh := &handler.WebhookHandler{Correlator: d.Correlator, Secret: cfg.WebhookSecret, MaxBody: cfg.WebhookMaxBody, Log: d.Log}
	me := &handler.MeHandler{}
	nh := &handler.NotificationHandler{Sink: d.Notifications, Email: d.Email, Log: d.Log}
	rh := &handler.ResultHandler{Correlator: d.Correlator}
	ch := &handler.CallHandler{Broker: d.Broker, Provider: d.Provider, Log: d.Log}
	ih := &handler.InterviewHandler{Store: d.Store}

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/omnidimension", wh.Receive)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(jwtSvc))

			r.Get("/me", me.Me)

			r.Get("/notifications", nh.List)
			r.Delete("/notifications/{id}", nh.Acknowledge)
			r.Post("/notifications/test-email", nh.TestEmail)

			r.Get("/results/latest", rh.Latest)
			r.Get("/results/{callId}", rh.Get)

			r.Post("/calls/start", ch.Start)
			r.Post("/calls/{placeholderId}/promote", ch.Promote)

			r.Post("/interviews/{id}/done", ih.Done)
		})
	})

	return r
}
