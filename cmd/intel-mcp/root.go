package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"intel-mcp/internal/config"
	"intel-mcp/internal/fetch"
	"intel-mcp/internal/kv"
	"intel-mcp/internal/logger"
	"intel-mcp/internal/mcp"
	"intel-mcp/internal/tools"
)

var version = "dev"

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "intel-mcp",
	Short:         "MCP server for threat-intelligence lookups",
	Long:          "intel-mcp exposes ORKL, ROSTI, CVE and organisation-profile lookups as MCP tools over HTTP or stdio.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		applyFlags(cmd)
		lc := logger.DefaultConfig()
		lc.Level = logger.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
		logger.Init(lc)
		return nil
	},
}

func init() {
	cfg = config.FromEnv()
	f := rootCmd.PersistentFlags()
	f.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error (LOG_LEVEL)")
	f.String("log-format", cfg.LogFormat, "Log format: text or json (LOG_FORMAT)")
	f.String("kv-path", cfg.KVPath, "Path of the sqlite key-value store (KV_PATH)")
	f.String("kv-source", cfg.KVSource, "Markdown or bulk JSON file loaded into the store (KV_SOURCE)")
	f.Int("payload-budget", cfg.PayloadBudget, "Byte budget for structured tool results (PAYLOAD_BUDGET)")
	f.Int("max-text-chars", cfg.MaxTextChars, "Ceiling for opt-in report text (MAX_TEXT_CHARS)")
	f.Duration("call-timeout", cfg.CallTimeout, "Per tool call timeout (CALL_TIMEOUT)")
	f.Duration("fetch-timeout", cfg.FetchTimeout, "Upstream HTTP timeout (FETCH_TIMEOUT)")
	f.Duration("cache-ttl", cfg.CacheTTL, "Upstream response cache TTL, 0 disables (CACHE_TTL)")
}

// applyFlags copies explicitly set flags over the environment values.
func applyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.LogFormat, _ = f.GetString("log-format")
	}
	if f.Changed("kv-path") {
		cfg.KVPath, _ = f.GetString("kv-path")
	}
	if f.Changed("kv-source") {
		cfg.KVSource, _ = f.GetString("kv-source")
	}
	if f.Changed("payload-budget") {
		cfg.PayloadBudget, _ = f.GetInt("payload-budget")
	}
	if f.Changed("max-text-chars") {
		cfg.MaxTextChars, _ = f.GetInt("max-text-chars")
	}
	if f.Changed("call-timeout") {
		cfg.CallTimeout, _ = f.GetDuration("call-timeout")
	}
	if f.Changed("fetch-timeout") {
		cfg.FetchTimeout, _ = f.GetDuration("fetch-timeout")
	}
	if f.Changed("cache-ttl") {
		cfg.CacheTTL, _ = f.GetDuration("cache-ttl")
	}
}

// app is the wired object graph shared by serve, stdio and call.
type app struct {
	store      *kv.SQLiteStore
	dispatcher *mcp.Dispatcher
}

func (r *app) Close() error { return r.store.Close() }

func newApp(c config.Config) (*app, error) {
	store, err := kv.Open(c.KVPath)
	if err != nil {
		return nil, fmt.Errorf("open key-value store: %w", err)
	}

	reg, err := tools.NewRegistry(tools.Config{
		ORKLBaseURL:  c.ORKLBaseURL,
		ROSTIBaseURL: c.ROSTIBaseURL,
		CVEBaseURL:   c.CVEBaseURL,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	fetcher := fetch.New(&http.Client{Timeout: c.FetchTimeout})
	fetcher.UserAgent = "intel-mcp/" + version

	inv := mcp.NewInvoker(mcp.Collaborators{
		Fetcher:      fetch.WithCache(fetcher, c.CacheTTL),
		Store:        store,
		Credentials:  c.Credentials(),
		MaxTextChars: c.MaxTextChars,
	}, mcp.WithPayloadBudget(c.PayloadBudget), mcp.WithCallTimeout(c.CallTimeout))

	d := mcp.NewDispatcher(reg, inv,
		mcp.WithServerInfo("intel-mcp", version),
		mcp.WithInstructions("Use orkl_* for CTI reports and actors, rosti_* for IOCs, cve_* for vulnerabilities and profile_* for the organisation profile."),
	)
	return &app{store: store, dispatcher: d}, nil
}

func sourceOptions() kv.Options {
	return kv.Options{Level: 2}
}
