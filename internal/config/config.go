// Package config reads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains every setting the commands need. Fields are plain values;
// cmd/ turns them into collaborator bundles.
type Config struct {
	Port        string
	TLSCertFile string
	TLSKeyFile  string

	ORKLBaseURL  string
	ROSTIBaseURL string
	ROSTIAPIKey  string
	CVEBaseURL   string

	KVPath   string
	KVSource string

	PayloadBudget int
	MaxTextChars  int
	CallTimeout   time.Duration
	FetchTimeout  time.Duration
	CacheTTL      time.Duration

	LogLevel  string
	LogFormat string
}

// FromEnv builds a Config from the current environment.
func FromEnv() Config {
	return Lookup(os.Getenv)
}

// Lookup builds a Config using getenv to read variables.
func Lookup(getenv func(string) string) Config {
	e := env{getenv: getenv}
	return Config{
		Port:          e.str("PORT", "3000"),
		TLSCertFile:   e.str("TLS_CERT_FILE", ""),
		TLSKeyFile:    e.str("TLS_KEY_FILE", ""),
		ORKLBaseURL:   e.str("ORKL_BASE_URL", ""),
		ROSTIBaseURL:  e.str("ROSTI_BASE_URL", ""),
		ROSTIAPIKey:   e.str("ROSTI_API_KEY", ""),
		CVEBaseURL:    e.str("CVE_BASE_URL", ""),
		KVPath:        e.str("KV_PATH", "intel-mcp.db"),
		KVSource:      e.str("KV_SOURCE", ""),
		PayloadBudget: e.int("PAYLOAD_BUDGET", 100*1024),
		MaxTextChars:  e.int("MAX_TEXT_CHARS", 20000),
		CallTimeout:   e.duration("CALL_TIMEOUT", 30*time.Second),
		FetchTimeout:  e.duration("FETCH_TIMEOUT", 15*time.Second),
		CacheTTL:      e.duration("CACHE_TTL", 0),
		LogLevel:      e.str("LOG_LEVEL", "info"),
		LogFormat:     e.str("LOG_FORMAT", "text"),
	}
}

// Credentials returns the named secrets that are set.
func (c Config) Credentials() map[string]string {
	creds := map[string]string{}
	if c.ROSTIAPIKey != "" {
		creds["ROSTI_API_KEY"] = c.ROSTIAPIKey
	}
	return creds
}

// TLS reports whether both a certificate and a key are configured.
func (c Config) TLS() bool { return c.TLSCertFile != "" && c.TLSKeyFile != "" }

type env struct {
	getenv func(string) string
}

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e env) int(key string, def int) int {
	if v := e.getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

// duration accepts Go durations ("90s") or a bare number of seconds.
func (e env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return def
}
