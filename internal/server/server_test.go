package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"intel-mcp/internal/kv"
	"intel-mcp/internal/mcp"
	"intel-mcp/internal/tools"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	reg := mcp.NewRegistry()
	reg.MustRegister(tools.ProfileGetSection(), tools.ProfileListSections())
	store := kv.NewMemoryStore(kv.Record{Key: "summary", Value: "Threat intel analyst."})
	inv := mcp.NewInvoker(mcp.Collaborators{Store: store})
	return New(mcp.NewDispatcher(reg, inv), opts...)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var h Health
	if err := json.NewDecoder(rr.Body).Decode(&h); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if h.Status != "ok" || h.Tools != 2 {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestRPCToolsList(t *testing.T) {
	s := newTestServer(t)
	body := `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		ID     json.RawMessage     `json:"id"`
		Result mcp.ListToolsResult `json:"result"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if string(resp.ID) != "7" {
		t.Fatalf("id not echoed: %s", resp.ID)
	}
	if len(resp.Result.Tools) != 2 || resp.Result.Tools[0].Name != "profile_get_section" {
		t.Fatalf("unexpected tools %+v", resp.Result.Tools)
	}
}

func TestRPCNotificationAccepted(t *testing.T) {
	s := newTestServer(t)
	body := `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}
}

func TestRPCParseError(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	var resp mcp.Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != mcp.CodeParseError {
		t.Fatalf("expected parse error, got %+v", resp)
	}
}

func TestToolsAndCall(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp/tools", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	body, _ := json.Marshal(map[string]any{"name": "profile_get_section", "arguments": map[string]any{"key": "summary"}})
	req = httptest.NewRequest(http.MethodPost, "/mcp/call", bytes.NewReader(body))
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res mcp.CallToolResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(res.Content) != 1 || !strings.Contains(res.Content[0].Text, "Threat intel analyst.") {
		t.Fatalf("unexpected content %+v", res.Content)
	}
}

func TestCallStatusMapping(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"unknown tool", `{"name":"nope"}`, http.StatusNotFound},
		{"missing key", `{"name":"profile_get_section","arguments":{}}`, http.StatusBadRequest},
		{"absent key", `{"name":"profile_get_section","arguments":{"key":"missing"}}`, http.StatusNotFound},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp/call", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			s.Router().ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestScheduled(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp/scheduled", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a source, got %d", rr.Code)
	}

	calls := 0
	s = newTestServer(t, WithReimport(func(context.Context) (int, error) {
		calls++
		return 3, nil
	}))
	req = httptest.NewRequest(http.MethodPost, "/mcp/scheduled", nil)
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || calls != 1 {
		t.Fatalf("expected 200 and one re-import, got %d and %d", rr.Code, calls)
	}

	s = newTestServer(t, WithReimport(func(context.Context) (int, error) {
		return 0, errors.New("boom")
	}))
	req = httptest.NewRequest(http.MethodPost, "/mcp/scheduled", nil)
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
