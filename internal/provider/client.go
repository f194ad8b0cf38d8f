// Package provider starts voice interview calls with the external voice
// provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.omnidim.io/api/v1"

// StartCallRequest is what we forward as custom data; CallID is our placeholder.
type StartCallRequest struct {
	CallID      string `json:"call_id"`
	OwnerID     string `json:"owner_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Education   string `json:"education,omitempty"`
	Experience  string `json:"experience,omitempty"`
	JobRole     string `json:"job_role,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// StartCallResponse carries the provider's own call id when it assigns one
// synchronously, plus the untouched response body for the client.
type StartCallResponse struct {
	ProviderCallID string          `json:"provider_call_id,omitempty"`
	Raw            json.RawMessage `json:"data,omitempty"`
}

// Client talks to the provider's call API.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
	stubMode   bool
}

// NewClient builds a client. Without credentials it runs in stub mode.
func NewClient(baseURL, apiKey, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		stubMode:   apiKey == "" || secretKey == "",
	}
}

func (c *Client) StubMode() bool {
	return c.stubMode
}

// StartCall asks the provider to open a web call tagged with req.CallID.
func (c *Client) StartCall(ctx context.Context, req StartCallRequest) (*StartCallResponse, error) {
	if c.stubMode {
		raw, _ := json.Marshal(map[string]any{
			"status":  "stub",
			"call_id": req.CallID,
		})
		return &StartCallResponse{Raw: raw}, nil
	}

	reqBody := map[string]any{
		"secret_key":  c.secretKey,
		"call_type":   "web_call",
		"custom_data": req,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call/start", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StartCallResponse{Raw: body}, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	out := &StartCallResponse{Raw: body}
	out.ProviderCallID = providerCallID(body)
	return out, nil
}

// providerCallID finds the provider-assigned id in the start response, if
// any. Responses have carried it at the top level and under "data".
func providerCallID(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, m := range []any{doc, doc["data"]} {
		obj, ok := m.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"call_id", "callId", "id"} {
			switch v := obj[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case float64:
				return fmt.Sprintf("%.0f", v)
			}
		}
	}
	return ""
}

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Body)
}
