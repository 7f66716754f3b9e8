package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"intel-mcp/internal/mcp"
)

// DefaultCVEBaseURL is the CVE aggregator API root.
const DefaultCVEBaseURL = "https://cve.circl.lu/api"

var cvePattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// CVE is a normalized vulnerability record. Both the legacy aggregator shape
// and CVE JSON 5 records are accepted.
type CVE struct {
	ID         string   `json:"id"`
	Summary    string   `json:"summary"`
	Published  string   `json:"published,omitempty"`
	Modified   string   `json:"modified,omitempty"`
	CVSS       *float64 `json:"cvss,omitempty"`
	References []string `json:"references"`
}

// CVEList is the payload of cve_latest.
type CVEList struct {
	Count int   `json:"count"`
	CVEs  []CVE `json:"cves"`
}

func cveSchema() *mcp.Schema {
	return mcp.OpenObject(map[string]*mcp.Schema{
		"id":         mcp.Prop(mcp.TypeString, "CVE identifier"),
		"summary":    mcp.Prop(mcp.TypeString, "Description"),
		"published":  mcp.Prop(mcp.TypeString, "Publication date"),
		"modified":   mcp.Prop(mcp.TypeString, "Last modification date"),
		"cvss":       mcp.Prop(mcp.TypeNumber, "Base score"),
		"references": mcp.ArrayOf(mcp.Prop(mcp.TypeString, ""), "Reference URLs"),
	}, "id", "summary", "references")
}

type cveArgs struct {
	CVEID string `json:"cveId"`
}

type cveLatestArgs struct {
	Limit int `json:"limit"`
}

// CVEGet fetches one CVE record.
func CVEGet(base string) mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "cve_get",
		Title:       "Get CVE",
		Description: "Look up a CVE record (summary, dates, CVSS, references).",
		InputSchema: mcp.Object(map[string]*mcp.Schema{
			"cveId": mcp.Prop(mcp.TypeString, "CVE identifier, e.g. CVE-2024-3094", mcp.WithPattern(cvePattern.String())),
		}, "cveId"),
		OutputSchema: cveSchema(),
	}
	t := mcp.Define(desc, func(ctx context.Context, a cveArgs, c mcp.Collaborators) (*CVE, error) {
		id := strings.ToUpper(strings.TrimSpace(a.CVEID))
		u, err := buildURL(base, "/cve/"+id, nil)
		if err != nil {
			return nil, err
		}
		body, err := getJSON(ctx, c, "cve", u, nil, id)
		if err != nil {
			return nil, err
		}
		m, _ := body.(map[string]any)
		if len(m) == 0 {
			return nil, mcp.NotFound("cve: %s not found", id)
		}
		rec := normalizeCVE(m)
		if rec.ID == "" {
			rec.ID = id
		}
		return &rec, nil
	}, summarizeCVE)
	t.Check = func(args mcp.Args) error {
		id, _ := args["cveId"].(string)
		if !cvePattern.MatchString(strings.ToUpper(strings.TrimSpace(id))) {
			return mcp.InvalidArgument("cveId %q is not of the form CVE-YYYY-NNNN", id)
		}
		return nil
	}
	return t
}

// CVELatest lists the most recently published CVEs.
func CVELatest(base string) mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "cve_latest",
		Title:       "Latest CVEs",
		Description: "List the most recently published CVE records.",
		InputSchema: mcp.Object(map[string]*mcp.Schema{
			"limit": mcp.Prop(mcp.TypeInteger, "Number of records", mcp.WithDefault(10), mcp.WithRange(1, 100)),
		}),
		OutputSchema: mcp.OpenObject(map[string]*mcp.Schema{
			"count": mcp.Prop(mcp.TypeInteger, ""),
			"cves":  mcp.ArrayOf(cveSchema(), ""),
		}, "count", "cves"),
	}
	return mcp.Define(desc, func(ctx context.Context, a cveLatestArgs, c mcp.Collaborators) (*CVEList, error) {
		n := clampLimit(a.Limit, 10, 100)
		u, err := buildURL(base, "/last/"+strconv.Itoa(n), nil)
		if err != nil {
			return nil, err
		}
		body, err := getJSON(ctx, c, "cve", u, nil, "latest records")
		if err != nil {
			return nil, err
		}
		items := extractItems(body)
		out := &CVEList{CVEs: make([]CVE, 0, len(items))}
		for _, it := range items {
			if len(out.CVEs) == n {
				break
			}
			m, _ := it.(map[string]any)
			out.CVEs = append(out.CVEs, normalizeCVE(m))
		}
		out.Count = len(out.CVEs)
		return out, nil
	}, func(l *CVEList) string {
		if l.Count == 0 {
			return "No recent CVEs returned."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d most recent CVE(s):", l.Count)
		for _, rec := range l.CVEs {
			summary, _ := mcp.ClipText(rec.Summary, 160)
			fmt.Fprintf(&b, "\n- %s: %s", rec.ID, summary)
		}
		return b.String()
	})
}

func normalizeCVE(m map[string]any) CVE {
	meta := getMap(m, "cveMetadata")
	cna := getMap(getMap(m, "containers"), "cna")

	rec := CVE{
		ID:        firstNonEmpty(getString(m, "id"), getString(meta, "cveId")),
		Summary:   getString(m, "summary"),
		Published: normalizeDate(firstNonEmpty(getString(m, "Published"), getString(m, "published"), getString(meta, "datePublished"))),
		Modified:  normalizeDate(firstNonEmpty(getString(m, "Modified"), getString(m, "modified"), getString(meta, "dateUpdated"))),
	}
	if rec.Summary == "" {
		for _, d := range getSlice(cna, "descriptions") {
			dm, _ := d.(map[string]any)
			if lang := getString(dm, "lang"); lang == "" || strings.HasPrefix(lang, "en") {
				rec.Summary = getString(dm, "value")
				break
			}
		}
	}
	if score, ok := m["cvss"].(float64); ok {
		rec.CVSS = &score
	} else if score, ok := cvssFromMetrics(getSlice(cna, "metrics")); ok {
		rec.CVSS = &score
	}
	rec.References = stringsFrom(getSlice(m, "references"), "url")
	if len(rec.References) == 0 {
		rec.References = stringsFrom(getSlice(cna, "references"), "url")
	}
	return rec
}

func cvssFromMetrics(metrics []any) (float64, bool) {
	for _, key := range []string{"cvssV4_0", "cvssV3_1", "cvssV3_0", "cvssV2_0"} {
		for _, it := range metrics {
			mm, _ := it.(map[string]any)
			if score, ok := getMap(mm, key)["baseScore"].(float64); ok {
				return score, true
			}
		}
	}
	return 0, false
}

func summarizeCVE(rec *CVE) string {
	var b strings.Builder
	b.WriteString(rec.ID)
	if rec.CVSS != nil {
		fmt.Fprintf(&b, " (CVSS %.1f)", *rec.CVSS)
	}
	if rec.Published != "" {
		fmt.Fprintf(&b, "\nPublished: %s", rec.Published)
	}
	if rec.Summary != "" {
		fmt.Fprintf(&b, "\n%s", rec.Summary)
	}
	if len(rec.References) > 0 {
		fmt.Fprintf(&b, "\nReferences: %d", len(rec.References))
	}
	return b.String()
}
