package server

import "encoding/json"

// CallRequest is the body of POST /mcp/call; it has the same shape as the
// tools/call params.
type CallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Health is the body of GET /health. Process figures are omitted when the
// platform cannot report them.
type Health struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Goroutines    int     `json:"goroutines"`
	Tools         int     `json:"tools"`
	RSSBytes      uint64  `json:"rssBytes,omitempty"`
	CPUPercent    float64 `json:"cpuPercent,omitempty"`
}
