package tools

import (
	"intel-mcp/internal/mcp"
)

// Config holds the upstream API roots. Empty fields fall back to the public
// defaults.
type Config struct {
	ORKLBaseURL  string
	ROSTIBaseURL string
	CVEBaseURL   string
}

func (c Config) withDefaults() Config {
	if c.ORKLBaseURL == "" {
		c.ORKLBaseURL = DefaultORKLBaseURL
	}
	if c.ROSTIBaseURL == "" {
		c.ROSTIBaseURL = DefaultROSTIBaseURL
	}
	if c.CVEBaseURL == "" {
		c.CVEBaseURL = DefaultCVEBaseURL
	}
	return c
}

// All returns the full catalogue in listing order.
func All(cfg Config) []mcp.Tool {
	cfg = cfg.withDefaults()
	return []mcp.Tool{
		ORKLSearchLibrary(cfg.ORKLBaseURL),
		ORKLGetReport(cfg.ORKLBaseURL),
		ORKLGetThreatActor(cfg.ORKLBaseURL),
		ROSTISearchIOCs(cfg.ROSTIBaseURL),
		ROSTIGetReport(cfg.ROSTIBaseURL),
		CVEGet(cfg.CVEBaseURL),
		CVELatest(cfg.CVEBaseURL),
		ProfileGetSection(),
		ProfileListSections(),
	}
}

// NewRegistry builds a registry holding the full catalogue.
func NewRegistry(cfg Config) (*mcp.Registry, error) {
	reg := mcp.NewRegistry()
	for _, t := range All(cfg) {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
