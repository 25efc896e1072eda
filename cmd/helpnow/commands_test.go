package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestLoginRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /auth/login": `{"email":"carer@example.com","leadId":"lead-1","authenticated":true,"timestamp":1748779200000}`,
	})

	client := ts.client()

	resp, err := client.post(ctx, "/auth/login", map[string]string{"email": "carer@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rec struct {
		Email         string `json:"email"`
		Authenticated bool   `json:"authenticated"`
	}
	if err := decodeJSON(resp, &rec); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rec.Email != "carer@example.com" || !rec.Authenticated {
		t.Errorf("record = %+v", rec)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["email"] != "carer@example.com" {
		t.Errorf("body.email = %q", body["email"])
	}
}

func TestErrorType(t *testing.T) {
	ts := newTestServer(t, nil)
	srvURL := ts.server.URL

	resp, err := http.Get(srvURL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	if got := errorType(resp); got != "not_found" {
		t.Errorf("errorType = %q, want not_found", got)
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
		w.Write([]byte(`{"error":{"message":"membership is not active","type":"no_active_membership"}}`))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	var out any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}
	if !strings.Contains(err.Error(), "membership is not active") {
		t.Errorf("error = %q, want the envelope message", err)
	}
}

func TestToggleFavoriteRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /favorites/toggle": `{"favorited":true}`,
	})

	client := ts.client()

	resp, err := client.post(ctx, "/favorites/toggle", map[string]string{
		"behavior":  "sundowning",
		"situation": "wants-to-go-home",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]bool
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result["favorited"] {
		t.Error("favorited = false, want true")
	}
}

func TestSearchRequest_EscapesQuery(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /search": `[]`,
	})

	client := ts.client()

	resp, err := client.get(ctx, "/search?q=wants%20to%20go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if got := ts.requests[0].Path; got != "/search?q=wants%20to%20go" {
		t.Errorf("path = %q", got)
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t    time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		if got := timeAgo(tt.t); got != tt.want {
			t.Errorf("timeAgo(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}
