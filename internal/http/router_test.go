package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"prep/internal/auth"
	"prep/internal/callid"
	"prep/internal/config"
	"prep/internal/interview"
	"prep/internal/keylock"
	"prep/internal/logger"
	"prep/internal/provider"
	"prep/internal/reminders"
	"prep/internal/results"
	"prep/internal/store"
)

type stubProvider struct {
	providerID string
	err        error
	got        provider.StartCallRequest
}

func (p *stubProvider) StartCall(_ context.Context, req provider.StartCallRequest) (*provider.StartCallResponse, error) {
	p.got = req
	if p.err != nil {
		return nil, p.err
	}
	return &provider.StartCallResponse{ProviderCallID: p.providerID, Raw: json.RawMessage(`{"status":"ok"}`)}, nil
}

type recordingEmail struct{ to []string }

func (e *recordingEmail) Send(_ context.Context, to, _, _ string) error {
	e.to = append(e.to, to)
	return nil
}

type testServer struct {
	h        http.Handler
	st       *store.Memory
	sink     *reminders.NotificationSink
	provider *stubProvider
	email    *recordingEmail
	jwt      *auth.JWT
}

func newTestServer(t *testing.T, webhookSecret string) *testServer {
	t.Helper()
	return newTestServerWithConfig(t, config.Config{WebhookSecret: webhookSecret})
}

func newTestServerWithConfig(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	log := logger.Discard()
	st := store.NewMemory()
	cache := results.NewMemoryCache()
	ts := &testServer{
		st:       st,
		sink:     reminders.NewNotificationSink(),
		provider: &stubProvider{},
		email:    &recordingEmail{},
		jwt:      auth.NewJWT("secret"),
	}
	locks := keylock.New()
	ts.h = NewRouter(cfg, Deps{
		Store:         st,
		Correlator:    results.NewCorrelator(st, cache, locks, log),
		Broker:        callid.NewBroker(st, cache, locks, log),
		Notifications: ts.sink,
		Email:         ts.email,
		Provider:      ts.provider,
		Log:           log,
	}, ts.jwt)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, owner *interview.Owner) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if owner != nil {
		tok, err := ts.jwt.Sign(*owner)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec
}

var (
	ada = &interview.Owner{ID: "u1", Email: "ada@example.com", Name: "Ada"}
	bob = &interview.Owner{ID: "u2", Email: "bob@example.com"}
)

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	ts := newTestServer(t, "")
	for _, path := range []string{"/api/notifications", "/api/results/latest", "/api/me"} {
		if rec := ts.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestWebhookThenResults(t *testing.T) {
	ts := newTestServer(t, "")

	if rec := ts.do(t, http.MethodGet, "/api/results/latest", "", ada); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any result, got %d", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/webhooks/omnidimension",
		`{"call_id":"x","owner_id":"u1","extracted_info":{"score":8},"full_conversation":"hello"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/results/x", "", ada)
	if rec.Code != http.StatusOK {
		t.Fatalf("get result: %d", rec.Code)
	}
	var got interview.Result
	decode(t, rec, &got)
	if got.Sentiment != "Not available" || got.Summary != "No summary provided." || got.Transcript != "hello" {
		t.Fatalf("unexpected result %+v", got)
	}

	if rec := ts.do(t, http.MethodGet, "/api/results/latest", "", ada); rec.Code != http.StatusOK {
		t.Fatalf("latest: expected 200, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/results/x", "", bob); rec.Code != http.StatusNotFound {
		t.Fatalf("other owner should get 404, got %d", rec.Code)
	}
}

func TestWebhookErrors(t *testing.T) {
	ts := newTestServer(t, "")

	if rec := ts.do(t, http.MethodPost, "/api/webhooks/omnidimension", `{"summary":"no id"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing call id: expected 400, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/webhooks/omnidimension", `not json`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rec.Code)
	}

	ts.do(t, http.MethodPost, "/api/webhooks/omnidimension", `{"call_id":"c","owner_id":"u1"}`, nil)
	if rec := ts.do(t, http.MethodPost, "/api/webhooks/omnidimension", `{"call_id":"c","owner_id":"u2"}`, nil); rec.Code != http.StatusConflict {
		t.Fatalf("owner conflict: expected 409, got %d", rec.Code)
	}
}

func TestWebhookSecret(t *testing.T) {
	ts := newTestServer(t, "s3cret")

	if rec := ts.do(t, http.MethodPost, "/api/webhooks/omnidimension", `{"call_id":"c"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/omnidimension", strings.NewReader(`{"call_id":"c"}`))
	req.Header.Set("X-Webhook-Secret", "s3cret")
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with secret, got %d", rec.Code)
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	ts := newTestServerWithConfig(t, config.Config{WebhookMaxBody: 64})

	big := `{"call_id":"big","summary":"` + strings.Repeat("x", 128) + `"}`
	rec := ts.do(t, http.MethodPost, "/api/webhooks/omnidimension", big, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", rec.Code, rec.Body.String())
	}
	if _, err := ts.st.FindResult(context.Background(), "big"); !errors.Is(err, interview.ErrNotFound) {
		t.Fatalf("oversized payload should not be stored, got %v", err)
	}

	rec = ts.do(t, http.MethodPost, "/api/webhooks/omnidimension", `{"call_id":"small"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("payload under the limit: %d %s", rec.Code, rec.Body.String())
	}
}

func TestNotificationsListAndAcknowledge(t *testing.T) {
	ts := newTestServer(t, "")
	ts.sink.Enqueue(reminders.Notification{
		ID:         reminders.NotificationID(ada.Email, 1),
		OwnerEmail: ada.Email,
		Interview:  interview.Interview{ID: 1, Company: "Acme"},
		EnqueuedAt: time.Now(),
	})

	rec := ts.do(t, http.MethodGet, "/api/notifications", "", ada)
	if !strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "[") {
		t.Fatalf("expected a bare array, got %s", rec.Body.String())
	}
	var list []reminders.Notification
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != "ada@example.com-1" || list[0].Interview.Company != "Acme" {
		t.Fatalf("unexpected notifications %+v", list)
	}
	if list[0].EnqueuedAt.IsZero() {
		t.Fatalf("expected enqueued_at in %s", rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/notifications", "", bob)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("bob should see an empty array, got %s", rec.Body.String())
	}

	// bob cannot clear ada's notification
	ts.do(t, http.MethodDelete, "/api/notifications/ada@example.com-1", "", bob)
	if ts.sink.Len() != 1 {
		t.Fatalf("notification removed by non-owner")
	}

	for i := 0; i < 2; i++ {
		rec = ts.do(t, http.MethodDelete, "/api/notifications/ada@example.com-1", "", ada)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"acknowledged":true`) {
			t.Fatalf("ack #%d: %d %s", i, rec.Code, rec.Body.String())
		}
	}
	if ts.sink.Len() != 0 {
		t.Fatalf("expected notification acknowledged")
	}
}

func TestTestEmail(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodPost, "/api/notifications/test-email", "", ada)
	if rec.Code != http.StatusOK || len(ts.email.to) != 1 || ts.email.to[0] != ada.Email {
		t.Fatalf("test email not sent: %d %v", rec.Code, ts.email.to)
	}
}

func TestStartCallPromotesProviderID(t *testing.T) {
	ts := newTestServer(t, "")
	ts.provider.providerID = "prov-9"

	rec := ts.do(t, http.MethodPost, "/api/calls/start", `{"job_role":"SRE","company_name":"Acme"}`, ada)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["call_id"] != "prov-9" {
		t.Fatalf("expected provider id, got %v", body["call_id"])
	}
	ph, _ := body["placeholder_id"].(string)
	if !callid.IsPlaceholder(ph) || ts.provider.got.CallID != ph || ts.provider.got.Name != "Ada" {
		t.Fatalf("unexpected hand-off %q %+v", ph, ts.provider.got)
	}
	if _, err := ts.st.FindResult(context.Background(), "prov-9"); err != nil {
		t.Fatalf("provider row missing: %v", err)
	}
}

func TestStartCallProviderFailure(t *testing.T) {
	ts := newTestServer(t, "")
	ts.provider.err = errors.New("boom")

	rec := ts.do(t, http.MethodPost, "/api/calls/start", `{}`, ada)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestPromoteRoute(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/calls/start", `{}`, ada)
	var body map[string]any
	decode(t, rec, &body)
	ph := body["placeholder_id"].(string)
	if body["call_id"] != ph {
		t.Fatalf("stub start should keep the placeholder, got %v", body["call_id"])
	}

	if rec := ts.do(t, http.MethodPost, "/api/calls/pending_0_x/promote", `{"provider_call_id":"p"}`, ada); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown placeholder: expected 404, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/calls/"+ph+"/promote", `{"provider_call_id":"p"}`, bob); rec.Code != http.StatusNotFound {
		t.Fatalf("non-owner: expected 404, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/calls/"+ph+"/promote", `{"provider_call_id":""}`, ada); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty provider id: expected 400, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/calls/"+ph+"/promote", `{"provider_call_id":"p1"}`, ada); rec.Code != http.StatusOK {
		t.Fatalf("promote: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := ts.do(t, http.MethodPost, "/api/calls/"+ph+"/promote", `{"provider_call_id":"p2"}`, ada); rec.Code != http.StatusConflict {
		t.Fatalf("second provider id: expected 409, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/results/"+ph, "", ada); rec.Code != http.StatusNotFound {
		t.Fatalf("placeholder lookup after promotion: expected 404, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/results/p1", "", ada); rec.Code != http.StatusOK {
		t.Fatalf("provider lookup after promotion: expected 200, got %d", rec.Code)
	}
}

func TestInterviewDone(t *testing.T) {
	ts := newTestServer(t, "")
	iv := interview.Interview{OwnerID: "u1", OwnerEmail: ada.Email, ScheduledTime: "10:00"}
	_ = ts.st.CreateInterview(context.Background(), &iv)

	if rec := ts.do(t, http.MethodPost, "/api/interviews/abc/done", "", ada); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/interviews/1/done", "", bob); rec.Code != http.StatusNotFound {
		t.Fatalf("other owner: expected 404, got %d", rec.Code)
	}
	for i := 0; i < 2; i++ {
		if rec := ts.do(t, http.MethodPost, "/api/interviews/1/done", "", ada); rec.Code != http.StatusOK {
			t.Fatalf("done #%d: expected 200, got %d", i, rec.Code)
		}
	}
}
