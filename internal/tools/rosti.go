package tools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"intel-mcp/internal/mcp"
)

// DefaultROSTIBaseURL is the ROSTI API root.
const DefaultROSTIBaseURL = "https://api.rosti.bin.re/v2"

// ROSTIKeyName names the credential holding the ROSTI API key.
const ROSTIKeyName = "ROSTI_API_KEY"

// IOC is a normalized ROSTI indicator.
type IOC struct {
	ID       string `json:"id"`
	Value    string `json:"value"`
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
	Date     string `json:"date,omitempty"`
	ReportID string `json:"reportId,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// IOCSearch is the payload of rosti_search_iocs.
type IOCSearch struct {
	Count int   `json:"count"`
	IOCs  []IOC `json:"iocs"`
}

// ROSTIReport is a normalized ROSTI report.
type ROSTIReport struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Date          string   `json:"date,omitempty"`
	Author        string   `json:"author,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	URL           string   `json:"url,omitempty"`
	Tags          []string `json:"tags"`
	Summary       string   `json:"summary,omitempty"`
	Text          string   `json:"text,omitempty"`
	TextTruncated bool     `json:"textTruncated,omitempty"`
}

type rostiSearchArgs struct {
	Value string `json:"value"`
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

type rostiReportArgs struct {
	ReportID    string `json:"reportId"`
	IncludeText bool   `json:"includeText"`
	MaxChars    int    `json:"maxChars"`
}

func rostiHeaders(c mcp.Collaborators) (map[string]string, error) {
	key, err := c.Credentials.Require(ROSTIKeyName)
	if err != nil {
		return nil, err
	}
	return map[string]string{"X-Api-Key": key, "Accept": "application/json"}, nil
}

// ROSTISearchIOCs searches ROSTI indicators of compromise.
func ROSTISearchIOCs(base string) mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "rosti_search_iocs",
		Title:       "Search ROSTI IOCs",
		Description: "Search ROSTI indicators of compromise by value and/or type. Requires a ROSTI API key.",
		InputSchema: mcp.Object(map[string]*mcp.Schema{
			"value": mcp.Prop(mcp.TypeString, "Indicator value or fragment (domain, IP, hash, ...)"),
			"type":  mcp.Prop(mcp.TypeString, "Indicator type filter, e.g. domain, ip, sha256"),
			"limit": mcp.Prop(mcp.TypeInteger, "Maximum number of indicators", mcp.WithDefault(25), mcp.WithRange(1, 500)),
		}),
		OutputSchema: mcp.OpenObject(map[string]*mcp.Schema{
			"count": mcp.Prop(mcp.TypeInteger, ""),
			"iocs": mcp.ArrayOf(mcp.OpenObject(map[string]*mcp.Schema{
				"id":       mcp.Prop(mcp.TypeString, ""),
				"value":    mcp.Prop(mcp.TypeString, ""),
				"type":     mcp.Prop(mcp.TypeString, ""),
				"category": mcp.Prop(mcp.TypeString, ""),
				"date":     mcp.Prop(mcp.TypeString, ""),
				"reportId": mcp.Prop(mcp.TypeString, ""),
				"comment":  mcp.Prop(mcp.TypeString, ""),
			}, "id", "value", "type"), ""),
		}, "count", "iocs"),
	}
	return mcp.Define(desc, func(ctx context.Context, a rostiSearchArgs, c mcp.Collaborators) (*IOCSearch, error) {
		headers, err := rostiHeaders(c)
		if err != nil {
			return nil, err
		}
		q := url.Values{}
		if a.Value != "" {
			q.Set("value", a.Value)
		}
		if a.Type != "" {
			q.Set("type", a.Type)
		}
		q.Set("limit", strconv.Itoa(clampLimit(a.Limit, 25, 500)))
		u, err := buildURL(base, "/iocs", q)
		if err != nil {
			return nil, err
		}
		body, err := getJSON(ctx, c, "rosti", u, headers, "indicators")
		if err != nil {
			return nil, err
		}
		items := extractItems(body)
		out := &IOCSearch{IOCs: make([]IOC, 0, len(items))}
		for _, it := range items {
			m, _ := it.(map[string]any)
			out.IOCs = append(out.IOCs, IOC{
				ID:       getString(m, "id"),
				Value:    firstNonEmpty(getString(m, "value"), getString(m, "ioc")),
				Type:     getString(m, "type"),
				Category: getString(m, "category"),
				Date:     normalizeDate(firstNonEmpty(getString(m, "date"), getString(m, "created"))),
				ReportID: firstNonEmpty(getString(m, "report"), getString(m, "report_id")),
				Comment:  getString(m, "comment"),
			})
		}
		out.Count = len(out.IOCs)
		return out, nil
	}, func(s *IOCSearch) string {
		if s.Count == 0 {
			return "No ROSTI indicators matched."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Found %d ROSTI indicator(s):", s.Count)
		for _, ioc := range s.IOCs {
			fmt.Fprintf(&b, "\n- [%s] %s", ioc.Type, ioc.Value)
			if ioc.ReportID != "" {
				fmt.Fprintf(&b, " (report %s)", ioc.ReportID)
			}
		}
		return b.String()
	})
}

// ROSTIGetReport fetches a single ROSTI report.
func ROSTIGetReport(base string) mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "rosti_get_report",
		Title:       "Get ROSTI report",
		Description: "Fetch a ROSTI report by identifier. Requires a ROSTI API key.",
		InputSchema: mcp.Object(textProps(map[string]*mcp.Schema{
			"reportId": mcp.Prop(mcp.TypeString, "ROSTI report identifier"),
		}), "reportId"),
		OutputSchema: mcp.OpenObject(map[string]*mcp.Schema{
			"id":            mcp.Prop(mcp.TypeString, ""),
			"title":         mcp.Prop(mcp.TypeString, ""),
			"date":          mcp.Prop(mcp.TypeString, ""),
			"author":        mcp.Prop(mcp.TypeString, ""),
			"publisher":     mcp.Prop(mcp.TypeString, ""),
			"url":           mcp.Prop(mcp.TypeString, ""),
			"tags":          mcp.ArrayOf(mcp.Prop(mcp.TypeString, ""), ""),
			"summary":       mcp.Prop(mcp.TypeString, ""),
			"text":          mcp.Prop(mcp.TypeString, ""),
			"textTruncated": mcp.Prop(mcp.TypeBoolean, ""),
		}, "id", "title", "tags"),
	}
	t := mcp.Define(desc, func(ctx context.Context, a rostiReportArgs, c mcp.Collaborators) (*ROSTIReport, error) {
		headers, err := rostiHeaders(c)
		if err != nil {
			return nil, err
		}
		id := strings.TrimSpace(a.ReportID)
		u, err := buildURL(base, "/reports/"+url.PathEscape(id), nil)
		if err != nil {
			return nil, err
		}
		body, err := getJSON(ctx, c, "rosti", u, headers, "report "+id)
		if err != nil {
			return nil, err
		}
		m, _ := dataField(body).(map[string]any)
		r := &ROSTIReport{
			ID:        firstNonEmpty(getString(m, "id"), id),
			Title:     getString(m, "title"),
			Date:      normalizeDate(firstNonEmpty(getString(m, "date"), getString(m, "published"))),
			Author:    getString(m, "author"),
			Publisher: getString(m, "publisher"),
			URL:       firstNonEmpty(getString(m, "url"), getString(m, "link")),
			Tags:      stringsFrom(getSlice(m, "tags"), "name"),
			Summary:   firstNonEmpty(getString(m, "summary"), getString(m, "description")),
		}
		r.Text, r.TextTruncated = optionalText(c, a.IncludeText, a.MaxChars, firstNonEmpty(getString(m, "text"), getString(m, "content")))
		return r, nil
	}, func(r *ROSTIReport) string {
		var b strings.Builder
		b.WriteString(firstNonEmpty(r.Title, r.ID))
		if r.Publisher != "" || r.Date != "" {
			fmt.Fprintf(&b, "\n%s %s", r.Publisher, r.Date)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "\n%s", r.URL)
		}
		if r.Summary != "" {
			fmt.Fprintf(&b, "\n\n%s", r.Summary)
		}
		if r.Text != "" {
			fmt.Fprintf(&b, "\n\n%s", r.Text)
		}
		return b.String()
	})
	t.Check = requireNonBlank("reportId")
	return t
}
