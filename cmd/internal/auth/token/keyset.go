package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// KeySet is one snapshot of remote verification keys, keyed by kid.
type KeySet struct {
	Keys map[string]*rsa.PublicKey
}

// KeySetCache fetches and caches a remote JWKS document.
//
// It is injected into the Manager (never ambient global state) so tests can
// point it at a fake endpoint and clear it deterministically. Concurrent
// refreshes of an expired entry are collapsed into a single fetch.
type KeySetCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.RWMutex
	cached    *KeySet
	fetchedAt time.Time

	group singleflight.Group
}

// NewKeySetCache builds a cache for the given JWKS URL.
func NewKeySetCache(url string, ttl time.Duration, client *http.Client) *KeySetCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySetCache{url: url, ttl: ttl, client: client}
}

// Get returns the cached key set, fetching when absent or stale.
// A fetch failure with no usable cache surfaces ErrKeySetUnavailable.
func (c *KeySetCache) Get(ctx context.Context, now time.Time) (*KeySet, error) {
	c.mu.RLock()
	ks, fetchedAt := c.cached, c.fetchedAt
	c.mu.RUnlock()

	if ks != nil && now.Sub(fetchedAt) < c.ttl {
		return ks, nil
	}

	v, err, _ := c.group.Do("jwks", func() (any, error) {
		// Re-check under the flight: another caller may have refreshed already.
		c.mu.RLock()
		cur, at := c.cached, c.fetchedAt
		c.mu.RUnlock()
		if cur != nil && now.Sub(at) < c.ttl {
			return cur, nil
		}

		fresh, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cached = fresh
		c.fetchedAt = time.Now().UTC()
		c.mu.Unlock()

		return fresh, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	return v.(*KeySet), nil
}

// Clear drops the cached key set so the next Get refetches.
func (c *KeySetCache) Clear() {
	c.mu.Lock()
	c.cached = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *KeySetCache) fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	return parseJWKS(body)
}

// jwk is the subset of RFC 7517 we accept. Only RSA keys are usable for RS256;
// other kty values are skipped rather than rejected.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func parseJWKS(body []byte) (*KeySet, error) {
	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	ks := &KeySet{Keys: make(map[string]*rsa.PublicKey, len(doc.Keys))}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := rsaFromJWK(k)
		if err != nil {
			continue
		}
		ks.Keys[k.Kid] = pub
	}

	if len(ks.Keys) == 0 {
		return nil, fmt.Errorf("jwks contained no usable RSA keys")
	}
	return ks, nil
}

func rsaFromJWK(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() <= 0 || e.Int64() > 1<<31 {
		return nil, fmt.Errorf("bad exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(e.Int64()),
	}, nil
}
