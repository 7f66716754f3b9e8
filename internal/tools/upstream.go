// Package tools defines the gateway's tool catalogue: thin proxies to the
// ORKL, ROSTI and CVE REST APIs and lookups into the profile key-value store.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"intel-mcp/internal/mcp"
)

// getJSON fetches url through the injected fetcher and decodes the body into
// a generic value. 404 becomes NotFound, every other non-2xx status and
// transport failure becomes UpstreamUnavailable.
func getJSON(ctx context.Context, c mcp.Collaborators, service, rawURL string, headers map[string]string, what string) (any, error) {
	f, err := c.FetcherOrErr()
	if err != nil {
		return nil, err
	}
	resp, err := f.Get(ctx, rawURL, headers)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, mcp.Upstream(err, "%s request timed out", service)
		}
		return nil, mcp.Upstream(err, "%s request failed", service)
	}
	switch {
	case resp.Status == http.StatusNotFound:
		return nil, mcp.NotFound("%s: %s not found", service, what)
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return nil, mcp.Upstream(nil, "%s rejected the request (status %d); check the API key", service, resp.Status)
	case !resp.OK():
		return nil, mcp.Upstream(nil, "%s api status %d", service, resp.Status)
	}
	var body any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, mcp.Upstream(err, "%s returned malformed JSON", service)
	}
	return body, nil
}

func buildURL(base string, path string, q url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// dataField unwraps the {"data": ...} envelope both ORKL and ROSTI use.
func dataField(body any) any {
	if m, ok := body.(map[string]any); ok {
		if v, ok := m["data"]; ok {
			return v
		}
	}
	return body
}

// extractItems tries common result field names or an array root.
func extractItems(body any) []any {
	if arr, ok := body.([]any); ok {
		return arr
	}
	if m, ok := body.(map[string]any); ok {
		for _, key := range []string{"data", "results", "items", "entries"} {
			if v, ok := m[key]; ok {
				if arr, ok := v.([]any); ok {
					return arr
				}
				if inner := extractItems(v); inner != nil {
					return inner
				}
			}
		}
	}
	return nil
}

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch t := m[key].(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	}
	return ""
}

func getMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func getSlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]any)
	return v
}

// stringsFrom collects the strings in arr, reading field from object items.
func stringsFrom(arr []any, fields ...string) []string {
	out := make([]string, 0, len(arr))
	for _, it := range arr {
		switch v := it.(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case map[string]any:
			vals := make([]string, 0, len(fields))
			for _, f := range fields {
				vals = append(vals, getString(v, f))
			}
			if s := firstNonEmpty(vals...); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// normalizeDate renders RFC 3339 or date-only inputs as YYYY-MM-DD and
// passes anything else through.
func normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// optionalText applies the opt-in free-text policy: nothing unless asked,
// clipped to the caller's cap (bounded by the system maximum) otherwise.
func optionalText(c mcp.Collaborators, include bool, maxChars int, text string) (string, bool) {
	if !include || text == "" {
		return "", false
	}
	return mcp.ClipText(text, c.TextLimit(maxChars))
}
