package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
)

type record struct {
	Title string `json:"title"`
	Date  string `json:"date"`
}

type lookupArgs struct {
	RecordID string `json:"recordId"`
}

// stubFetcher answers every GET with a fixed body and counts calls.
type stubFetcher struct {
	body  string
	calls atomic.Int32
}

func (s *stubFetcher) Get(context.Context, string, map[string]string) (*FetchResponse, error) {
	s.calls.Add(1)
	return &FetchResponse{Status: 200, Body: []byte(s.body)}, nil
}

func lookupRecord() Tool {
	desc := Descriptor{
		Name:  "lookup_record",
		Title: "Lookup record",
		InputSchema: Object(map[string]*Schema{
			"recordId": Prop(TypeString, ""),
		}, "recordId"),
		OutputSchema: Object(map[string]*Schema{
			"title": Prop(TypeString, ""),
			"date":  Prop(TypeString, ""),
		}, "title", "date"),
	}
	return Define(desc, func(ctx context.Context, a lookupArgs, c Collaborators) (*record, error) {
		f, err := c.FetcherOrErr()
		if err != nil {
			return nil, err
		}
		resp, err := f.Get(ctx, "https://records.example/"+a.RecordID, nil)
		if err != nil {
			return nil, Upstream(err, "fetch failed")
		}
		var r record
		if err := json.Unmarshal(resp.Body, &r); err != nil {
			return nil, Upstream(err, "bad body")
		}
		return &r, nil
	}, func(r *record) string { return fmt.Sprintf("%s (%s)", r.Title, r.Date) })
}

func keyedTool() Tool {
	return Define(Descriptor{Name: "keyed", InputSchema: Object(nil)}, func(ctx context.Context, _ struct{}, c Collaborators) (map[string]any, error) {
		if _, err := c.Credentials.Require("API_KEY"); err != nil {
			return nil, err
		}
		f, err := c.FetcherOrErr()
		if err != nil {
			return nil, err
		}
		if _, err := f.Get(ctx, "https://keyed.example/", nil); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	}, nil)
}

func newTestDispatcher(f RemoteFetcher) *Dispatcher {
	reg := NewRegistry()
	reg.MustRegister(lookupRecord(), keyedTool())
	return NewDispatcher(reg, NewInvoker(Collaborators{Fetcher: f}), WithServerInfo("test", "0.0.1"))
}

func call(t *testing.T, d *Dispatcher, body string) map[string]any {
	t.Helper()
	resp := d.HandleRaw(context.Background(), []byte(body))
	if resp == nil {
		t.Fatalf("expected a response for %s", body)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %v", resp)
	}
	if _, hasResult := resp["result"]; hasResult {
		t.Fatal("envelope must not carry both result and error")
	}
	return int(e["code"].(float64))
}

func TestLookupRecordScenario(t *testing.T) {
	d := newTestDispatcher(&stubFetcher{body: `{"title":"X","date":"2024-01-01"}`})
	resp := call(t, d, `{"id":1,"method":"tools/call","params":{"name":"lookup_record","arguments":{"recordId":"abc"}}}`)

	if resp["id"] != float64(1) || resp["jsonrpc"] != "2.0" {
		t.Fatalf("bad envelope %v", resp)
	}
	result := resp["result"].(map[string]any)
	content := result["content"].([]any)
	if len(content) == 0 {
		t.Fatal("content must not be empty")
	}
	item := content[0].(map[string]any)
	if item["type"] != "text" || !strings.Contains(item["text"].(string), "X") {
		t.Fatalf("unexpected content %v", item)
	}
	sc := result["structuredContent"].(map[string]any)
	if sc["title"] != "X" || sc["date"] != "2024-01-01" {
		t.Fatalf("unexpected structured content %v", sc)
	}
}

func TestMissingCredentialFailsBeforeFetch(t *testing.T) {
	f := &stubFetcher{body: `{}`}
	d := newTestDispatcher(f)
	resp := call(t, d, `{"id":"k","method":"tools/call","params":{"name":"keyed","arguments":{}}}`)

	if code := errorCode(t, resp); code != CodeMissingCredential {
		t.Fatalf("expected %d, got %d", CodeMissingCredential, code)
	}
	msg := resp["error"].(map[string]any)["message"].(string)
	if !strings.Contains(msg, "API_KEY") {
		t.Fatalf("message should name the credential: %q", msg)
	}
	if f.calls.Load() != 0 {
		t.Fatal("collaborator must not be called")
	}
}

func TestValidationFailsBeforeCollaborators(t *testing.T) {
	f := &stubFetcher{body: `{}`}
	d := newTestDispatcher(f)
	cases := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"missing field", `{"id":2,"method":"tools/call","params":{"name":"lookup_record","arguments":{}}}`, CodeInvalidParams, "recordId"},
		{"wrong type", `{"id":2,"method":"tools/call","params":{"name":"lookup_record","arguments":{"recordId":5}}}`, CodeInvalidParams, "recordId"},
		{"extra field", `{"id":2,"method":"tools/call","params":{"name":"lookup_record","arguments":{"recordId":"a","x":1}}}`, CodeInvalidParams, "x"},
		{"unknown tool", `{"id":2,"method":"tools/call","params":{"name":"nope"}}`, CodeMethodNotFound, "nope"},
		{"missing name", `{"id":2,"method":"tools/call","params":{}}`, CodeInvalidParams, "name"},
		{"arguments not object", `{"id":2,"method":"tools/call","params":{"name":"lookup_record","arguments":[1]}}`, CodeInvalidParams, "object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, d, tc.body)
			if code := errorCode(t, resp); code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, code)
			}
			if msg := resp["error"].(map[string]any)["message"].(string); !strings.Contains(msg, tc.msg) {
				t.Fatalf("message %q should mention %q", msg, tc.msg)
			}
		})
	}
	if f.calls.Load() != 0 {
		t.Fatalf("collaborator called %d times", f.calls.Load())
	}
}

func TestEnvelopeHandling(t *testing.T) {
	d := newTestDispatcher(&stubFetcher{})
	cases := []struct {
		name string
		body string
		code int
		id   any
	}{
		{"malformed", `{"id":1,"method":`, CodeParseError, nil},
		{"not an object", `[1,2]`, CodeParseError, nil},
		{"unknown method", `{"id":"x","method":"resources/list"}`, CodeMethodNotFound, "x"},
		{"empty method", `{"id":4}`, CodeInvalidRequest, float64(4)},
		{"bad id type", `{"id":{"a":1},"method":"ping"}`, CodeInvalidRequest, nil},
		{"method not a string", `{"id":1,"method":5}`, CodeInvalidRequest, float64(1)},
		{"unknown notification with id", `{"id":7,"method":"notifications/bogus"}`, CodeMethodNotFound, float64(7)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, d, tc.body)
			if code := errorCode(t, resp); code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, code)
			}
			if resp["id"] != tc.id {
				t.Fatalf("expected id %v, got %v", tc.id, resp["id"])
			}
		})
	}
}

func TestNotificationsHaveNoResponse(t *testing.T) {
	d := newTestDispatcher(&stubFetcher{})
	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":1}}`,
		`{"jsonrpc":"2.0","id":null,"method":"notifications/progress"}`,
	} {
		if resp := d.HandleRaw(context.Background(), []byte(body)); resp != nil {
			t.Fatalf("expected no response for %s, got %+v", body, resp)
		}
	}
}

func TestInitializeAndListAreStable(t *testing.T) {
	d := newTestDispatcher(&stubFetcher{})

	initResp := call(t, d, `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{}}`)
	result := initResp["result"].(map[string]any)
	if result["protocolVersion"] != ProtocolVersion {
		t.Fatalf("unexpected protocol version %v", result["protocolVersion"])
	}
	if result["serverInfo"].(map[string]any)["name"] != "test" {
		t.Fatalf("unexpected server info %v", result["serverInfo"])
	}

	first, _ := json.Marshal(call(t, d, `{"id":1,"method":"tools/list"}`)["result"])
	second, _ := json.Marshal(call(t, d, `{"id":2,"method":"tools/list"}`)["result"])
	if string(first) != string(second) {
		t.Fatal("tools/list must be idempotent")
	}
	if !strings.Contains(string(first), `"inputSchema"`) || !strings.Contains(string(first), `"outputSchema"`) {
		t.Fatalf("descriptors should carry schemas: %s", first)
	}

	ping := call(t, d, `{"id":"p","method":"ping"}`)
	if _, ok := ping["result"].(map[string]any); !ok {
		t.Fatalf("ping should return an empty object, got %v", ping)
	}
}

func TestRequestWithoutIDStillAnswered(t *testing.T) {
	d := newTestDispatcher(&stubFetcher{})
	resp := call(t, d, `{"method":"ping"}`)
	if v, present := resp["id"]; !present || v != nil {
		t.Fatalf("expected explicit null id, got %v", resp)
	}
}
