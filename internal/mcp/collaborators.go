package mcp

import (
	"context"
	"strings"
)

// FetchResponse is the raw outcome of a remote GET.
type FetchResponse struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r *FetchResponse) OK() bool { return r.Status >= 200 && r.Status < 300 }

// RemoteFetcher performs HTTP GETs against upstream APIs.
type RemoteFetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) (*FetchResponse, error)
}

// KeyValueStore is a read-only key lookup.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// KeyLister is implemented by stores that can enumerate their keys.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Credentials holds named secrets such as upstream API keys.
type Credentials map[string]string

// Require returns the named credential or a MissingCredential error.
func (c Credentials) Require(name string) (string, error) {
	v := strings.TrimSpace(c[name])
	if v == "" {
		return "", MissingCredential(name)
	}
	return v, nil
}

// Collaborators is the capability bundle handed to every tool call.
type Collaborators struct {
	Fetcher     RemoteFetcher
	Store       KeyValueStore
	Credentials Credentials
	// MaxTextChars caps opt-in free-text fields.
	MaxTextChars int
}

// DefaultMaxTextChars is the system ceiling for opt-in free text.
const DefaultMaxTextChars = 20000

// TextLimit resolves the effective character cap for a caller request. A
// non-positive request means the system maximum.
func (c Collaborators) TextLimit(requested int) int {
	ceiling := c.MaxTextChars
	if ceiling <= 0 {
		ceiling = DefaultMaxTextChars
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// FetcherOrErr returns the fetcher or a MissingCredential error naming it.
func (c Collaborators) FetcherOrErr() (RemoteFetcher, error) {
	if c.Fetcher == nil {
		return nil, MissingCredential("remote fetcher")
	}
	return c.Fetcher, nil
}

// StoreOrErr returns the key-value store or a MissingCredential error.
func (c Collaborators) StoreOrErr() (KeyValueStore, error) {
	if c.Store == nil {
		return nil, MissingCredential("key-value store")
	}
	return c.Store, nil
}
