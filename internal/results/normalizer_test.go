package results

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"prep/internal/interview"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestNormalizeSnakeCase(t *testing.T) {
	raw := []byte(`{"call_id":"abc","full_conversation":"hi","summary":"ok","sentiment":"Positive","recording_url":"https://r/1","extracted_info":{"score":7},"timestamp":"2026-03-14T08:00:00Z"}`)

	n, err := Normalize(raw, fixedNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.CallID != "abc" || n.CallIDSource != StrategySnake {
		t.Fatalf("expected abc from snake_case, got %q from %s", n.CallID, n.CallIDSource)
	}
	if n.Transcript != "hi" || n.Summary != "ok" || n.Sentiment != "Positive" || n.RecordingRef != "https://r/1" {
		t.Fatalf("unexpected fields: %+v", n.Result)
	}
	if string(n.ExtractedInfo) != `{"score":7}` {
		t.Fatalf("unexpected extracted info %s", n.ExtractedInfo)
	}
	if !n.ResultTimestamp.Equal(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", n.ResultTimestamp)
	}
	if n.Phase != interview.PhaseProvider {
		t.Fatalf("expected provider phase, got %q", n.Phase)
	}
}

func TestNormalizeCamelCase(t *testing.T) {
	raw := []byte(`{"callId":"c-1","fullConversation":"transcript","extractedInfo":{"a":"b"},"recordingUrl":"rec","ownerId":"u1"}`)

	n, err := Normalize(raw, fixedNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.CallID != "c-1" || n.CallIDSource != StrategyCamel {
		t.Fatalf("expected c-1 from camelCase, got %q from %s", n.CallID, n.CallIDSource)
	}
	if n.Transcript != "transcript" || n.RecordingRef != "rec" || n.OwnerID != "u1" {
		t.Fatalf("unexpected fields: %+v", n.Result)
	}
	if string(n.ExtractedInfo) != `{"a":"b"}` {
		t.Fatalf("unexpected extracted info %s", n.ExtractedInfo)
	}
}

func TestNormalizeCallReportNumericID(t *testing.T) {
	raw := []byte(`{"call_report":{"call_id":12345,"full_conversation":"x","extracted_variables":{"k":1}}}`)

	n, err := Normalize(raw, fixedNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.CallID != "12345" {
		t.Fatalf("expected decimal call id, got %q", n.CallID)
	}
	if n.CallIDSource != StrategyCallReport {
		t.Fatalf("expected call_report strategy, got %s", n.CallIDSource)
	}
	if n.Transcript != "x" || string(n.ExtractedInfo) != `{"k":1}` {
		t.Fatalf("unexpected fields: %+v", n.Result)
	}
	if n.Summary != DefaultSummary || n.Sentiment != DefaultSentiment {
		t.Fatalf("expected defaults, got %q / %q", n.Summary, n.Sentiment)
	}
	if !n.ResultTimestamp.Equal(fixedNow) {
		t.Fatalf("expected timestamp to default to now, got %s", n.ResultTimestamp)
	}
}

func TestNormalizeTopLevelWinsOverCallReport(t *testing.T) {
	raw := []byte(`{"call_id":"top","summary":"top summary","call_report":{"call_id":"nested","summary":"nested summary"}}`)

	n, err := Normalize(raw, fixedNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.CallID != "top" || n.Summary != "top summary" {
		t.Fatalf("expected top-level fields to win, got %q / %q", n.CallID, n.Summary)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	n, err := Normalize([]byte(`{"call_id":"abc"}`), fixedNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.Transcript != "" || n.RecordingRef != "" {
		t.Fatalf("expected empty transcript and recording, got %+v", n.Result)
	}
	if n.Summary != "No summary provided." || n.Sentiment != "Not available" {
		t.Fatalf("unexpected defaults %q / %q", n.Summary, n.Sentiment)
	}
	if string(n.ExtractedInfo) != "{}" {
		t.Fatalf("expected empty object, got %s", n.ExtractedInfo)
	}
}

func TestNormalizeCustomDataOnly(t *testing.T) {
	raw := []byte(`{"custom_data":{"call_id":"pending_1_aa","owner_id":"u9"},"summary":"s"}`)

	n, err := Normalize(raw, fixedNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.CallID != "pending_1_aa" || n.CallIDSource != StrategyCustomData {
		t.Fatalf("expected echoed placeholder, got %q from %s", n.CallID, n.CallIDSource)
	}
	if n.PlaceholderID != "" {
		t.Fatalf("placeholder used as the key must not be adopted, got %q", n.PlaceholderID)
	}
	if n.OwnerID != "u9" {
		t.Fatalf("expected owner from custom data, got %q", n.OwnerID)
	}
}

func TestNormalizeEchoedPlaceholder(t *testing.T) {
	raw := []byte(`{"call_id":"prov-1","custom_data":{"call_id":"pending_1_aa"}}`)

	n, err := Normalize(raw, fixedNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.CallID != "prov-1" || n.PlaceholderID != "pending_1_aa" {
		t.Fatalf("expected prov-1 with placeholder pending_1_aa, got %q / %q", n.CallID, n.PlaceholderID)
	}
}

func TestNormalizeMissingCallID(t *testing.T) {
	for _, raw := range []string{`{}`, `{"summary":"x"}`, `{"call_id":""}`, `null`} {
		_, err := Normalize([]byte(raw), fixedNow)
		if !errors.Is(err, ErrMissingCallID) {
			t.Fatalf("%s: expected ErrMissingCallID, got %v", raw, err)
		}
		if !errors.Is(err, interview.ErrInput) {
			t.Fatalf("%s: expected input error, got %v", raw, err)
		}
	}
}

func TestNormalizeMalformedJSON(t *testing.T) {
	_, err := Normalize([]byte(`{"call_id":`), fixedNow)
	if !errors.Is(err, interview.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestNormalizeUnixTimestamps(t *testing.T) {
	cases := map[string]time.Time{
		`{"call_id":"a","timestamp":1700000000}`:    time.Unix(1700000000, 0).UTC(),
		`{"call_id":"a","timestamp":1700000000123}`: time.UnixMilli(1700000000123).UTC(),
		`{"call_id":"a","timestamp":"1700000000"}`:  time.Unix(1700000000, 0).UTC(),
		`{"call_id":"a","timestamp":"garbage"}`:     fixedNow,
	}
	for raw, want := range cases {
		n, err := Normalize([]byte(raw), fixedNow)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if !n.ResultTimestamp.Equal(want) {
			t.Fatalf("%s: expected %s, got %s", raw, want, n.ResultTimestamp)
		}
	}
}

func TestNormalizeKeepsRawPayload(t *testing.T) {
	raw := []byte(`{"call_id":"abc","extra":true}`)
	n, err := Normalize(raw, fixedNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(n.RawPayload, &back); err != nil {
		t.Fatalf("raw payload not json: %v", err)
	}
	if back["extra"] != true {
		t.Fatalf("raw payload lost fields: %s", n.RawPayload)
	}
}

func TestCanonicalCallID(t *testing.T) {
	cases := map[string]string{
		"interview_42":       "42",
		"  interview_42 ":    "42",
		"interview_":         "interview_",
		"interview_abc":      "interview_abc",
		"interview_1_2":      "interview_1_2",
		"pending_1_deadbeef": "pending_1_deadbeef",
		"42":                 "42",
	}
	for in, want := range cases {
		if got := CanonicalCallID(in); got != want {
			t.Fatalf("CanonicalCallID(%q) = %q, want %q", in, got, want)
		}
	}
}
