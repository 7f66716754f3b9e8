package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"intel-mcp/internal/mcp"
)

// Section is one markdown section stored in the profile key-value store.
type Section struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// SectionList is the payload of profile_list_sections.
type SectionList struct {
	Pattern string   `json:"pattern"`
	Count   int      `json:"count"`
	Keys    []string `json:"keys"`
}

type sectionArgs struct {
	Key string `json:"key"`
}

type listArgs struct {
	Pattern string `json:"pattern"`
}

// ProfileGetSection reads one section from the key-value store.
func ProfileGetSection() mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "profile_get_section",
		Title:       "Get profile section",
		Description: "Read a section of the organisation profile by key (as produced by `kv convert`).",
		InputSchema: mcp.Object(map[string]*mcp.Schema{
			"key": mcp.Prop(mcp.TypeString, "Section key, e.g. overview or assets/cloud"),
		}, "key"),
		OutputSchema: mcp.OpenObject(map[string]*mcp.Schema{
			"key":     mcp.Prop(mcp.TypeString, ""),
			"content": mcp.Prop(mcp.TypeString, "Section markdown"),
		}, "key", "content"),
	}
	t := mcp.Define(desc, func(ctx context.Context, a sectionArgs, c mcp.Collaborators) (*Section, error) {
		store, err := c.StoreOrErr()
		if err != nil {
			return nil, err
		}
		key := strings.TrimSpace(a.Key)
		v, ok, err := store.Get(ctx, key)
		if err != nil {
			return nil, mcp.Upstream(err, "key-value lookup failed")
		}
		if !ok {
			return nil, mcp.NotFound("profile section %q not found", key)
		}
		return &Section{Key: key, Content: v}, nil
	}, func(s *Section) string {
		if strings.TrimSpace(s.Content) == "" {
			return fmt.Sprintf("Section %s is empty.", s.Key)
		}
		return s.Content
	})
	t.Check = requireNonBlank("key")
	return t
}

// ProfileListSections lists stored section keys matching a glob.
func ProfileListSections() mcp.Tool {
	desc := mcp.Descriptor{
		Name:        "profile_list_sections",
		Title:       "List profile sections",
		Description: "List profile section keys, optionally filtered by a glob such as assets/** or *.",
		InputSchema: mcp.Object(map[string]*mcp.Schema{
			"pattern": mcp.Prop(mcp.TypeString, "Glob over keys; ** crosses '/'", mcp.WithDefault("**")),
		}),
		OutputSchema: mcp.OpenObject(map[string]*mcp.Schema{
			"pattern":      mcp.Prop(mcp.TypeString, ""),
			"count":        mcp.Prop(mcp.TypeInteger, "Total number of matching keys"),
			"keys":         mcp.ArrayOf(mcp.Prop(mcp.TypeString, ""), "Matching keys, possibly shortened to fit the payload budget"),
			"keys_omitted": mcp.Prop(mcp.TypeInteger, "Matching keys left out of keys"),
		}, "pattern", "count", "keys"),
	}
	t := mcp.Define(desc, func(ctx context.Context, a listArgs, c mcp.Collaborators) (*SectionList, error) {
		store, err := c.StoreOrErr()
		if err != nil {
			return nil, err
		}
		lister, ok := store.(mcp.KeyLister)
		if !ok {
			return nil, mcp.Upstream(nil, "key-value store does not support listing")
		}
		keys, err := lister.Keys(ctx)
		if err != nil {
			return nil, mcp.Upstream(err, "key-value listing failed")
		}
		pattern := firstNonEmpty(strings.TrimSpace(a.Pattern), "**")
		out := &SectionList{Pattern: pattern, Keys: []string{}}
		for _, k := range keys {
			if match, _ := doublestar.Match(pattern, k); match {
				out.Keys = append(out.Keys, k)
			}
		}
		sort.Strings(out.Keys)
		out.Count = len(out.Keys)
		return out, nil
	}, func(l *SectionList) string {
		if l.Count == 0 {
			return fmt.Sprintf("No profile sections match %s.", l.Pattern)
		}
		return fmt.Sprintf("%d section(s) match %s:\n%s", l.Count, l.Pattern, strings.Join(l.Keys, "\n"))
	})
	t.Check = func(args mcp.Args) error {
		p, _ := args["pattern"].(string)
		if p != "" && !doublestar.ValidatePattern(p) {
			return mcp.InvalidArgument("pattern %q is not a valid glob", p)
		}
		return nil
	}
	return t
}
