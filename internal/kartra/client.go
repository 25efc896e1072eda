// Package kartra talks to the Kartra CRM API: membership verification
// for the login flow, plus the form-encoded command API used by test
// tooling.
package kartra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://app.kartra.com/api/v1"
	defaultCommandURL = "https://app.kartra.com/api"
	defaultTimeout    = 15 * time.Second
)

// Client communicates with the Kartra API.
type Client struct {
	apiKey      string
	apiPassword string
	appID       string
	baseURL     string
	commandURL  string
	httpClient  *http.Client
}

// NewClient creates a Kartra client with the given credentials.
func NewClient(apiKey, apiPassword, appID string) *Client {
	return &Client{
		apiKey:      apiKey,
		apiPassword: apiPassword,
		appID:       appID,
		baseURL:     defaultBaseURL,
		commandURL:  defaultCommandURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL
// (for testing). The command API is served from the same base.
func NewClientWithBaseURL(apiKey, apiPassword, appID, baseURL string) *Client {
	c := NewClient(apiKey, apiPassword, appID)
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.commandURL = c.baseURL
	return c
}

// VerifyMember checks an email against the membership roster. An
// unknown email is a normal outcome (IsVerified false), not an error;
// errors mean the verification service itself could not be reached or
// answered unexpectedly.
func (c *Client) VerifyMember(ctx context.Context, email string) (Verification, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return Verification{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/members/verify", bytes.NewReader(body))
	if err != nil {
		return Verification{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, c.apiPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Verification{IsVerified: false, Email: email}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Verification{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var v Verification
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Verification{}, fmt.Errorf("decoding response: %w", err)
	}
	if v.Email == "" {
		v.Email = email
	}
	return v, nil
}

// CreateTestLead creates a lead and immediately searches for it via the
// chained-command form API. Used by support tooling to seed a test
// member.
func (c *Client) CreateTestLead(ctx context.Context, email string) (json.RawMessage, error) {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("api_password", c.apiPassword)
	form.Set("app_id", c.appID)
	form.Set("lead[email]", email)
	form.Set("lead[first_name]", "Test")
	form.Set("lead[last_name]", "User")
	form.Set("actions[0][cmd]", "create_lead")
	form.Set("actions[1][cmd]", "search_lead")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.commandURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return json.RawMessage(data), nil
}
