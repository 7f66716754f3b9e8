package tools

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"intel-mcp/internal/mcp"
)

// DefaultORKLBaseURL is the public ORKL API root.
const DefaultORKLBaseURL = "https://orkl.eu/api/v1"

var (
	uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	sha1Pattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
)

// Report is a normalized ORKL library entry.
type Report struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	SHA1          string   `json:"sha1,omitempty"`
	Sources       []string `json:"sources"`
	ThreatActors  []string `json:"threatActors"`
	Summary       string   `json:"summary,omitempty"`
	Text          string   `json:"text,omitempty"`
	TextTruncated bool     `json:"textTruncated,omitempty"`
	ResolvedFrom  string   `json:"resolvedFrom,omitempty"`
}

// ReportSearch is the payload of orkl_search_library.
type ReportSearch struct {
	Query   string   `json:"query"`
	Count   int      `json:"count"`
	Entries []Report `json:"entries"`
}

// ThreatActor is a normalized ORKL threat actor entry.
type ThreatActor struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases"`
	Country     string   `json:"country,omitempty"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools"`
	References  []string `json:"references"`
}

func reportSchema() *mcp.Schema {
	return mcp.OpenObject(map[string]*mcp.Schema{
		"id":            mcp.Prop(mcp.TypeString, "ORKL entry UUID"),
		"title":         mcp.Prop(mcp.TypeString, "Report title"),
		"createdAt":     mcp.Prop(mcp.TypeString, "Creation date (YYYY-MM-DD)"),
		"sha1":          mcp.Prop(mcp.TypeString, "SHA-1 of the source document"),
		"sources":       mcp.ArrayOf(mcp.Prop(mcp.TypeString, ""), "Publishing sources"),
		"threatActors":  mcp.ArrayOf(mcp.Prop(mcp.TypeString, ""), "Referenced threat actors"),
		"summary":       mcp.Prop(mcp.TypeString, "Short description"),
		"text":          mcp.Prop(mcp.TypeString, "Extracted report text, when requested"),
		"textTruncated": mcp.Prop(mcp.TypeBoolean, "Whether text was clipped"),
		"resolvedFrom":  mcp.Prop(mcp.TypeString, "Alternate identifier the entry was resolved from"),
	}, "id", "title", "sources", "threatActors")
}

func textProps(props map[string]*mcp.Schema) map[string]*mcp.Schema {
	props["includeText"] = mcp.Prop(mcp.TypeBoolean, "Include the extracted free text", mcp.WithDefault(false))
	props["maxChars"] = mcp.Prop(mcp.TypeInteger, "Character cap for included text (clamped to the server maximum)", mcp.WithRange(1, mcp.DefaultMaxTextChars))
	return props
}

type orklSearchArgs struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
	IncludeText bool   `json:"includeText"`
	MaxChars    int    `json:"maxChars"`
}

type orklReportArgs struct {
	ReportID    string `json:"reportId"`
	IncludeText bool   `json:"includeText"`
	MaxChars    int    `json:"maxChars"`
}

type orklActorArgs struct {
	ActorID string `json:"actorId"`
}

// ORKLSearchLibrary searches the ORKL report library.
func ORKLSearchLibrary(base string) mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "orkl_search_library",
		Title:       "Search ORKL library",
		Description: "Full-text search over the ORKL threat report library.",
		InputSchema: mcp.Object(textProps(map[string]*mcp.Schema{
			"query": mcp.Prop(mcp.TypeString, "Search terms"),
			"limit": mcp.Prop(mcp.TypeInteger, "Maximum number of entries", mcp.WithDefault(10), mcp.WithRange(1, 100)),
		}), "query"),
		OutputSchema: mcp.OpenObject(map[string]*mcp.Schema{
			"query":   mcp.Prop(mcp.TypeString, ""),
			"count":   mcp.Prop(mcp.TypeInteger, ""),
			"entries": mcp.ArrayOf(reportSchema(), "Matching reports"),
		}, "query", "count", "entries"),
	}
	t := mcp.Define(desc, func(ctx context.Context, a orklSearchArgs, c mcp.Collaborators) (*ReportSearch, error) {
		q := url.Values{}
		q.Set("query", a.Query)
		q.Set("limit", strconv.Itoa(clampLimit(a.Limit, 10, 100)))
		q.Set("full", strconv.FormatBool(a.IncludeText))
		u, err := buildURL(base, "/library/search", q)
		if err != nil {
			return nil, err
		}
		body, err := getJSON(ctx, c, "orkl", u, nil, "search results")
		if err != nil {
			return nil, err
		}
		items := extractItems(body)
		out := &ReportSearch{Query: a.Query, Entries: make([]Report, 0, len(items))}
		for _, it := range items {
			m, _ := it.(map[string]any)
			out.Entries = append(out.Entries, normalizeReport(c, m, a.IncludeText, a.MaxChars))
		}
		out.Count = len(out.Entries)
		return out, nil
	}, summarizeSearch)
	t.Check = requireNonBlank("query")
	return t
}

// ORKLGetReport fetches one ORKL entry by UUID or by the SHA-1 of its source
// document. A SHA-1 is resolved to the entry UUID before the entry is
// fetched; when ORKL has no entry for the hash the input is tried as a
// literal entry identifier.
func ORKLGetReport(base string) mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "orkl_get_report",
		Title:       "Get ORKL report",
		Description: "Fetch an ORKL report by entry UUID or SHA-1 hash.",
		InputSchema: mcp.Object(textProps(map[string]*mcp.Schema{
			"reportId": mcp.Prop(mcp.TypeString, "Entry UUID or SHA-1 hash", mcp.WithPattern(`^([0-9a-fA-F-]{36}|[0-9a-fA-F]{40})$`)),
		}), "reportId"),
		OutputSchema: reportSchema(),
	}
	t := mcp.Define(desc, func(ctx context.Context, a orklReportArgs, c mcp.Collaborators) (*Report, error) {
		ref := strings.TrimSpace(a.ReportID)
		id, resolvedFrom, err := resolveReportID(ctx, base, c, ref)
		if err != nil {
			return nil, err
		}
		u, err := buildURL(base, "/library/entry/"+url.PathEscape(id), nil)
		if err != nil {
			return nil, err
		}
		body, err := getJSON(ctx, c, "orkl", u, nil, "report "+id)
		if err != nil {
			return nil, err
		}
		m, _ := dataField(body).(map[string]any)
		r := normalizeReport(c, m, a.IncludeText, a.MaxChars)
		r.ResolvedFrom = resolvedFrom
		if r.ID == "" {
			r.ID = id
		}
		return &r, nil
	}, summarizeReport)
	t.Check = func(args mcp.Args) error {
		ref, _ := args["reportId"].(string)
		ref = strings.TrimSpace(ref)
		if !uuidPattern.MatchString(ref) && !sha1Pattern.MatchString(ref) {
			return mcp.InvalidArgument("reportId %q is neither a UUID nor a SHA-1 hash", ref)
		}
		return nil
	}
	return t
}

// resolveReportID maps a SHA-1 to an entry UUID. It returns the id to fetch
// and, when resolution succeeded, the hash it came from.
func resolveReportID(ctx context.Context, base string, c mcp.Collaborators, ref string) (string, string, error) {
	if !sha1Pattern.MatchString(ref) {
		return ref, "", nil
	}
	u, err := buildURL(base, "/library/entry/sha1/"+strings.ToLower(ref), nil)
	if err != nil {
		return "", "", err
	}
	body, err := getJSON(ctx, c, "orkl", u, nil, "hash "+ref)
	if mcp.IsKind(err, mcp.KindNotFound) {
		return ref, "", nil
	}
	if err != nil {
		return "", "", err
	}
	m, _ := dataField(body).(map[string]any)
	id := getString(m, "id")
	if id == "" {
		return ref, "", nil
	}
	return id, ref, nil
}

// ORKLGetThreatActor fetches a threat actor profile.
func ORKLGetThreatActor(base string) mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "orkl_get_threat_actor",
		Title:       "Get ORKL threat actor",
		Description: "Fetch a threat actor profile (aliases, tooling, references) from ORKL.",
		InputSchema: mcp.Object(map[string]*mcp.Schema{
			"actorId": mcp.Prop(mcp.TypeString, "Threat actor UUID"),
		}, "actorId"),
		OutputSchema: mcp.OpenObject(map[string]*mcp.Schema{
			"id":          mcp.Prop(mcp.TypeString, ""),
			"name":        mcp.Prop(mcp.TypeString, ""),
			"aliases":     mcp.ArrayOf(mcp.Prop(mcp.TypeString, ""), ""),
			"country":     mcp.Prop(mcp.TypeString, ""),
			"description": mcp.Prop(mcp.TypeString, ""),
			"tools":       mcp.ArrayOf(mcp.Prop(mcp.TypeString, ""), ""),
			"references":  mcp.ArrayOf(mcp.Prop(mcp.TypeString, ""), ""),
		}, "id", "name", "aliases", "tools", "references"),
	}
	t := mcp.Define(desc, func(ctx context.Context, a orklActorArgs, c mcp.Collaborators) (*ThreatActor, error) {
		id := strings.TrimSpace(a.ActorID)
		u, err := buildURL(base, "/ta/entry/"+url.PathEscape(id), nil)
		if err != nil {
			return nil, err
		}
		body, err := getJSON(ctx, c, "orkl", u, nil, "threat actor "+id)
		if err != nil {
			return nil, err
		}
		m, _ := dataField(body).(map[string]any)
		return &ThreatActor{
			ID:          firstNonEmpty(getString(m, "id"), id),
			Name:        firstNonEmpty(getString(m, "main_name"), getString(m, "name")),
			Aliases:     stringsFrom(getSlice(m, "aliases"), "name", "value"),
			Country:     firstNonEmpty(getString(m, "country"), getString(m, "country_name")),
			Description: firstNonEmpty(getString(m, "description"), getString(m, "summary")),
			Tools:       stringsFrom(getSlice(m, "tools"), "name", "value"),
			References:  stringsFrom(getSlice(m, "references"), "url", "link"),
		}, nil
	}, func(ta *ThreatActor) string {
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%s)", ta.Name, ta.ID)
		if len(ta.Aliases) > 0 {
			fmt.Fprintf(&b, "\nAliases: %s", strings.Join(ta.Aliases, ", "))
		}
		if ta.Country != "" {
			fmt.Fprintf(&b, "\nCountry: %s", ta.Country)
		}
		if len(ta.Tools) > 0 {
			fmt.Fprintf(&b, "\nTools: %s", strings.Join(ta.Tools, ", "))
		}
		return b.String()
	})
	t.Check = func(args mcp.Args) error {
		id, _ := args["actorId"].(string)
		if !uuidPattern.MatchString(strings.TrimSpace(id)) {
			return mcp.InvalidArgument("actorId %q is not a UUID", id)
		}
		return nil
	}
	return t
}

func normalizeReport(c mcp.Collaborators, m map[string]any, includeText bool, maxChars int) Report {
	r := Report{
		ID:           getString(m, "id"),
		Title:        firstNonEmpty(getString(m, "title"), getString(m, "name")),
		CreatedAt:    normalizeDate(firstNonEmpty(getString(m, "created_at"), getString(m, "report_date"))),
		SHA1:         firstNonEmpty(getString(m, "sha1_hash"), getString(m, "sha1")),
		Sources:      stringsFrom(getSlice(m, "sources"), "name", "url"),
		ThreatActors: stringsFrom(getSlice(m, "threat_actors"), "main_name", "name"),
		Summary:      firstNonEmpty(getString(m, "summary"), getString(m, "description")),
	}
	r.Text, r.TextTruncated = optionalText(c, includeText, maxChars, getString(m, "plain_text"))
	return r
}

func summarizeSearch(s *ReportSearch) string {
	if s.Count == 0 {
		return fmt.Sprintf("No ORKL reports matched %q.", s.Query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d ORKL report(s) for %q:", s.Count, s.Query)
	for i, r := range s.Entries {
		fmt.Fprintf(&b, "\n%d. %s", i+1, r.Title)
		if r.CreatedAt != "" {
			fmt.Fprintf(&b, " (%s)", r.CreatedAt)
		}
		fmt.Fprintf(&b, " [%s]", r.ID)
	}
	return b.String()
}

func summarizeReport(r *Report) string {
	var b strings.Builder
	b.WriteString(firstNonEmpty(r.Title, r.ID))
	if r.CreatedAt != "" {
		fmt.Fprintf(&b, "\nCreated: %s", r.CreatedAt)
	}
	if len(r.Sources) > 0 {
		fmt.Fprintf(&b, "\nSources: %s", strings.Join(r.Sources, ", "))
	}
	if len(r.ThreatActors) > 0 {
		fmt.Fprintf(&b, "\nThreat actors: %s", strings.Join(r.ThreatActors, ", "))
	}
	fmt.Fprintf(&b, "\nID: %s", r.ID)
	if r.ResolvedFrom != "" {
		fmt.Fprintf(&b, " (resolved from %s)", r.ResolvedFrom)
	}
	if r.Text != "" {
		fmt.Fprintf(&b, "\n\n%s", r.Text)
	}
	return b.String()
}

func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func requireNonBlank(field string) mcp.CheckFunc {
	return func(args mcp.Args) error {
		if s, _ := args[field].(string); strings.TrimSpace(s) == "" {
			return mcp.InvalidArgument("%s must not be blank", field)
		}
		return nil
	}
}
