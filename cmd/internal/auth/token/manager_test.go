package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bazaar/cmd/internal/audit"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *captureRecorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *captureRecorder) details() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Detail)
	}
	return out
}

func hs256Config() Config {
	cfg := DefaultConfig()
	cfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func rsaPrivPEM(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func rsaPubPEM(t *testing.T, key *rsa.PublicKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func rs256Config(t *testing.T, key *rsa.PrivateKey) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Algorithm = AlgRS256
	cfg.PrivateKeyPEM = rsaPrivPEM(t, key)
	cfg.PublicKeyPEM = rsaPubPEM(t, &key.PublicKey)
	return cfg
}

func TestSignVerify_RoundTrip_HS256(t *testing.T) {
	m, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := m.Issue("user-1", "sess-1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatal("exp not in the future")
	}

	claims, err := m.Verify(context.Background(), tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionID != "sess-1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.Issuer != "bazaar" || claims.ID == "" {
		t.Fatalf("registered claims not filled: %+v", claims.RegisteredClaims)
	}
}

func TestSignVerify_RoundTrip_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	m, err := NewManager(rs256Config(t, key))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := m.Issue("user-2", "sess-2", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Verify(context.Background(), tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-2" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestVerify_RejectsForeignAlgorithm(t *testing.T) {
	// A validly signed RS256 token must be rejected by an HS256 verifier
	// before any signature work.
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := NewManager(rs256Config(t, key))
	if err != nil {
		t.Fatalf("NewManager signer: %v", err)
	}

	rec := &captureRecorder{}
	verifier, err := NewManager(hs256Config(), WithRecorder(rec))
	if err != nil {
		t.Fatalf("NewManager verifier: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := signer.Issue("user-3", "sess-3", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = verifier.Verify(context.Background(), tok, now)
	if !errors.Is(err, ErrUnexpectedAlgorithm) {
		t.Fatalf("want ErrUnexpectedAlgorithm, got %v", err)
	}

	ds := rec.details()
	if len(ds) != 1 || ds[0] != "unexpected_algorithm" {
		t.Fatalf("audit details = %v", ds)
	}
}

func TestVerify_Expired(t *testing.T) {
	rec := &captureRecorder{}
	m, err := NewManager(hs256Config(), WithRecorder(rec))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := m.Issue("user-4", "sess-4", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = m.Verify(context.Background(), tok, now.Add(16*time.Minute))
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
	// Expiry is routine and must not be audited.
	if got := rec.details(); len(got) != 0 {
		t.Fatalf("expiry was audited: %v", got)
	}
}

func TestVerify_IssuerAndAudience(t *testing.T) {
	cfg := hs256Config()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	other := hs256Config()
	other.Issuer = "someone-else"
	foreign, err := NewManager(other)
	if err != nil {
		t.Fatalf("NewManager foreign: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := foreign.Issue("user-5", "sess-5", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := m.Verify(context.Background(), tok, now); !errors.Is(err, ErrInvalidIssuer) {
		t.Fatalf("want ErrInvalidIssuer, got %v", err)
	}

	other = hs256Config()
	other.Audience = "not-our-audience"
	foreign, err = NewManager(other)
	if err != nil {
		t.Fatalf("NewManager foreign aud: %v", err)
	}
	tok, _, err = foreign.Issue("user-5", "sess-5", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(context.Background(), tok, now); !errors.Is(err, ErrInvalidAudience) {
		t.Fatalf("want ErrInvalidAudience, got %v", err)
	}
}

func TestVerify_GarbageToken(t *testing.T) {
	m, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	for _, tok := range []string{"", "not.a.jwt", "a.b"} {
		if _, err := m.Verify(context.Background(), tok, time.Now().UTC()); err == nil {
			t.Fatalf("Verify(%q): want error", tok)
		}
	}
}

func jwksJSON(t *testing.T, keys map[string]*rsa.PublicKey) string {
	t.Helper()
	doc := `{"keys":[`
	first := true
	for kid, pub := range keys {
		if !first {
			doc += ","
		}
		first = false
		doc += fmt.Sprintf(
			`{"kty":"RSA","use":"sig","kid":%q,"n":%q,"e":%q}`,
			kid,
			base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		)
	}
	return doc + `]}`
}

func TestVerify_KeySetRotation(t *testing.T) {
	keyA, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey A: %v", err)
	}
	keyB, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey B: %v", err)
	}

	var mu sync.Mutex
	published := map[string]*rsa.PublicKey{"key-a": &keyA.PublicKey}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = w.Write([]byte(jwksJSON(t, published)))
	}))
	defer srv.Close()

	// Signer uses key B with kid key-b, simulating a rotated-in key.
	signerCfg := DefaultConfig()
	signerCfg.Algorithm = AlgRS256
	signerCfg.PrivateKeyPEM = rsaPrivPEM(t, keyB)
	signerCfg.PublicKeyPEM = rsaPubPEM(t, &keyB.PublicKey)
	signerCfg.KeyID = "key-b"
	signer, err := NewManager(signerCfg)
	if err != nil {
		t.Fatalf("NewManager signer: %v", err)
	}

	verifierCfg := DefaultConfig()
	verifierCfg.Algorithm = AlgRS256
	verifierCfg.PrivateKeyPEM = rsaPrivPEM(t, keyA)
	verifierCfg.JWKSURL = srv.URL
	verifier, err := NewManager(verifierCfg)
	if err != nil {
		t.Fatalf("NewManager verifier: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := signer.Issue("user-6", "sess-6", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Cache state {A}: token signed with B must fail.
	if _, err := verifier.Verify(context.Background(), tok, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature against stale set, got %v", err)
	}

	// Publish {A,B} and clear the cache: verification succeeds, no restart.
	mu.Lock()
	published["key-b"] = &keyB.PublicKey
	mu.Unlock()
	verifier.ClearKeyCache()

	claims, err := verifier.Verify(context.Background(), tok, now)
	if err != nil {
		t.Fatalf("Verify after rotation: %v", err)
	}
	if claims.UserID != "user-6" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestVerify_KeySetFetchFailureFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Algorithm = AlgRS256
	cfg.PrivateKeyPEM = rsaPrivPEM(t, key)
	cfg.JWKSURL = srv.URL
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := m.Issue("user-7", "sess-7", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := m.Verify(context.Background(), tok, now); !errors.Is(err, ErrKeySetUnavailable) {
		t.Fatalf("want ErrKeySetUnavailable, got %v", err)
	}
}
