package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"prep/internal/interview"

	"gorm.io/datatypes"
)

const (
	DefaultSummary   = "No summary provided."
	DefaultSentiment = "Not available"
)

// ErrMissingCallID is the one payload defect we cannot recover from.
var ErrMissingCallID = fmt.Errorf("missing call id: %w", interview.ErrInput)

// Strategy names one payload shape the provider has shipped.
type Strategy string

const (
	StrategySnake      Strategy = "snake_case"
	StrategyCamel      Strategy = "camelCase"
	StrategyCallReport Strategy = "call_report"
	StrategyCustomData Strategy = "custom_data"
)

// extractor pulls candidate fields out of one payload shape. Paths are
// evaluated in order; the first non-empty hit wins.
type extractor struct {
	name       Strategy
	callID     [][]string
	owner      [][]string
	transcript [][]string
	summary    [][]string
	sentiment  [][]string
	recording  [][]string
	extracted  [][]string
	timestamp  [][]string
}

// echoedCallID is where the provider reflects the custom data we sent when
// starting the call, i.e. our placeholder.
var echoedCallID = [][]string{{"custom_data", "call_id"}, {"call_report", "custom_data", "call_id"}}

// strategies are consulted in priority order: modern explicit top-level
// fields first, then the legacy nested call report, then custom data
// echoed back from the start-call request.
var strategies = []extractor{
	{
		name:       StrategySnake,
		callID:     [][]string{{"call_id"}},
		owner:      [][]string{{"owner_id"}},
		transcript: [][]string{{"full_conversation"}, {"transcript"}},
		summary:    [][]string{{"summary"}},
		sentiment:  [][]string{{"sentiment"}},
		recording:  [][]string{{"recording_url"}},
		extracted:  [][]string{{"extracted_info"}},
		timestamp:  [][]string{{"timestamp"}},
	},
	{
		name:       StrategyCamel,
		callID:     [][]string{{"callId"}},
		owner:      [][]string{{"ownerId"}},
		transcript: [][]string{{"fullConversation"}},
		recording:  [][]string{{"recordingUrl"}},
		extracted:  [][]string{{"extractedInfo"}},
	},
	{
		name:       StrategyCallReport,
		callID:     [][]string{{"call_report", "call_id"}},
		transcript: [][]string{{"call_report", "full_conversation"}},
		summary:    [][]string{{"call_report", "summary"}},
		sentiment:  [][]string{{"call_report", "sentiment"}},
		recording:  [][]string{{"call_report", "recording_url"}},
		extracted:  [][]string{{"call_report", "extracted_variables"}},
		timestamp:  [][]string{{"call_report", "timestamp"}},
	},
	{
		name:   StrategyCustomData,
		callID: echoedCallID,
		owner:  [][]string{{"custom_data", "owner_id"}, {"call_report", "custom_data", "owner_id"}},
	},
}

// Normalized is the canonical record plus the strategy that supplied the call id.
type Normalized struct {
	interview.Result
	CallIDSource Strategy
	// PlaceholderID is the echoed placeholder when the payload also carries
	// a provider id, letting ingestion complete a hand-off that never got
	// promoted.
	PlaceholderID string
}

// Normalize maps an arbitrary provider payload to a Result. It never fails
// on missing optional fields; only a missing call id is an error.
func Normalize(raw []byte, now time.Time) (Normalized, error) {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Normalized{}, fmt.Errorf("decode payload: %w: %v", interview.ErrInput, err)
	}
	if payload == nil {
		return Normalized{}, ErrMissingCallID
	}
	return NormalizeMap(payload, raw, now)
}

// NormalizeMap is Normalize for an already-decoded payload.
func NormalizeMap(payload map[string]any, raw []byte, now time.Time) (Normalized, error) {
	var out Normalized

	for _, s := range strategies {
		if id := firstString(payload, s.callID); id != "" {
			out.CallID = id
			out.CallIDSource = s.name
			break
		}
	}
	if out.CallID == "" {
		return Normalized{}, ErrMissingCallID
	}

	if out.CallIDSource != StrategyCustomData {
		if ph := firstString(payload, echoedCallID); ph != "" && ph != out.CallID {
			out.PlaceholderID = ph
		}
	}

	out.OwnerID = pick(payload, func(s extractor) [][]string { return s.owner })
	out.Transcript = pick(payload, func(s extractor) [][]string { return s.transcript })
	out.Summary = orDefault(pick(payload, func(s extractor) [][]string { return s.summary }), DefaultSummary)
	out.Sentiment = orDefault(pick(payload, func(s extractor) [][]string { return s.sentiment }), DefaultSentiment)
	out.RecordingRef = pick(payload, func(s extractor) [][]string { return s.recording })
	out.ExtractedInfo = pickObject(payload)
	out.ResultTimestamp = pickTimestamp(payload, now)
	out.Phase = interview.PhaseProvider
	if len(raw) > 0 {
		out.RawPayload = datatypes.JSON(raw)
	}
	return out, nil
}

func pick(payload map[string]any, paths func(extractor) [][]string) string {
	for _, s := range strategies {
		if v := firstString(payload, paths(s)); v != "" {
			return v
		}
	}
	return ""
}

func pickObject(payload map[string]any) datatypes.JSON {
	for _, s := range strategies {
		for _, p := range s.extracted {
			v, ok := lookup(payload, p)
			if !ok {
				continue
			}
			m, ok := v.(map[string]any)
			if !ok || len(m) == 0 {
				continue
			}
			b, err := json.Marshal(m)
			if err != nil {
				continue
			}
			return datatypes.JSON(b)
		}
	}
	return datatypes.JSON("{}")
}

func pickTimestamp(payload map[string]any, now time.Time) time.Time {
	for _, s := range strategies {
		for _, p := range s.timestamp {
			v, ok := lookup(payload, p)
			if !ok {
				continue
			}
			if t, ok := asTime(v); ok {
				return t
			}
		}
	}
	return now
}

func firstString(payload map[string]any, paths [][]string) string {
	for _, p := range paths {
		v, ok := lookup(payload, p)
		if !ok {
			continue
		}
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

func lookup(payload map[string]any, path []string) (any, bool) {
	var cur any = payload
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// asTime accepts RFC 3339 strings and unix seconds or milliseconds.
func asTime(v any) (time.Time, bool) {
	var n int64
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, true
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		n = i
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return time.Time{}, false
			}
			i = int64(f)
		}
		n = i
	case float64:
		n = int64(t)
	default:
		return time.Time{}, false
	}
	if n <= 0 {
		return time.Time{}, false
	}
	// anything past year ~2286 in seconds is really milliseconds
	if n > 1e10 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// CanonicalCallID rewrites the legacy "interview_<digits>" alias to the
// bare numeric id older clients meant.
func CanonicalCallID(id string) string {
	id = strings.TrimSpace(id)
	rest, ok := strings.CutPrefix(id, "interview_")
	if !ok || rest == "" || strings.Contains(rest, "_") {
		return id
	}
	if _, err := strconv.ParseUint(rest, 10, 64); err != nil {
		return id
	}
	return rest
}
