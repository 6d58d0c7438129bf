package authapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/audit"
	"bazaar/cmd/internal/auth/session"
	"bazaar/cmd/internal/auth/token"
	"bazaar/cmd/internal/ratelimit"
	"bazaar/cmd/security/password"
)

// Light Argon2id parameters so tests do not burn 64 MiB per hash.
func testPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func testConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20,
		WebCookiesEnabled: true,
		CookiePath:        "/",
		CookieSecure:      false,
		CookieSameSite:    http.SameSiteLaxMode,
		AccessCookieName:  "bazaar_at",
		RefreshCookieName: "bazaar_rt",
		CSRFCookieName:    "bazaar_csrf",
		CSRFHeaderName:    "X-CSRF-Token",
	}
}

// ---- fakes ----

type fakeUsers struct {
	mu        sync.Mutex
	byEmail   map[string]identity.UserAuth
	byID      map[string]identity.User
	linked    map[string]identity.User // provider|subject
	passwords map[string]string        // userID -> last SetPassword value
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail:   map[string]identity.UserAuth{},
		byID:      map[string]identity.User{},
		linked:    map[string]identity.User{},
		passwords: map[string]string{},
	}
}

func (f *fakeUsers) add(u identity.User, passwordHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmail[u.EmailNorm] = identity.UserAuth{User: u, PasswordHash: passwordHash}
	f.byID[u.ID] = u
}

func (f *fakeUsers) CreateUser(_ context.Context, in identity.CreateUserInput) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	norm := identity.NormalizeEmail(in.Email)
	if _, ok := f.byEmail[norm]; ok {
		return identity.User{}, identity.ConflictError{Op: "identity.CreateUser", Field: "email"}
	}
	u := identity.User{
		ID:        "user-" + norm,
		Email:     strings.TrimSpace(in.Email),
		EmailNorm: norm,
		Name:      in.Name,
		CreatedAt: in.Now,
	}
	f.byEmail[norm] = identity.UserAuth{User: u, PasswordHash: "stored"}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return u, nil
}

func (f *fakeUsers) GetUserAuthByEmail(_ context.Context, email string) (identity.UserAuth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ua, ok := f.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return identity.UserAuth{}, identity.NotFoundError{Op: "identity.GetUserAuthByEmail", Resource: "user"}
	}
	return ua, nil
}

func (f *fakeUsers) FindOrCreateOAuthUser(_ context.Context, id identity.OAuthIdentity, now time.Time) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := id.Provider + "|" + id.Subject
	if u, ok := f.linked[key]; ok {
		return u, nil
	}
	norm := identity.NormalizeEmail(id.Email)
	if ua, ok := f.byEmail[norm]; ok {
		f.linked[key] = ua.User
		return ua.User, nil
	}
	u := identity.User{ID: "user-" + norm, Email: id.Email, EmailNorm: norm, Name: id.Name, CreatedAt: now}
	f.byEmail[norm] = identity.UserAuth{User: u}
	f.byID[u.ID] = u
	f.linked[key] = u
	return u, nil
}

func (f *fakeUsers) SetPassword(_ context.Context, userID, newPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[userID]; !ok {
		return identity.NotFoundError{Op: "identity.SetPassword", Resource: "user"}
	}
	if len(newPassword) < 8 {
		return identity.OpError{Op: "identity.SetPassword", Kind: identity.ErrInvalidInput, Msg: "password too short"}
	}
	f.passwords[userID] = newPassword
	return nil
}

// fakeSessions is a function-field fake so each test configures exactly the
// behavior it exercises.
type fakeSessions struct {
	issueFn      func(ctx context.Context, now time.Time, userID string, dev session.DeviceContext) (session.Issued, error)
	rotateFn     func(ctx context.Context, now time.Time, refreshTokenPlain string, dev session.DeviceContext) (session.Issued, error)
	verifyFn     func(ctx context.Context, sessionID, presented string) (string, time.Time, error)
	verifyByRTFn func(ctx context.Context, refreshTokenPlain, presented string) (string, time.Time, error)
	checkFn      func(ctx context.Context, now time.Time, sessionID, userID string) (session.Row, error)

	mu         sync.Mutex
	revoked    []string
	revokedAll []string
}

func canonicalIssued() session.Issued {
	now := time.Now().UTC()
	return session.Issued{
		SessionID:    "sess-1",
		AccessToken:  "at-1",
		AccessExp:    now.Add(10 * time.Minute),
		RefreshToken: "rt-1",
		RefreshExp:   now.Add(7 * 24 * time.Hour),
		CSRFToken:    "csrf-1",
	}
}

func (f *fakeSessions) Issue(ctx context.Context, now time.Time, userID string, dev session.DeviceContext) (session.Issued, error) {
	if f.issueFn != nil {
		return f.issueFn(ctx, now, userID, dev)
	}
	return canonicalIssued(), nil
}

func (f *fakeSessions) Rotate(ctx context.Context, now time.Time, rt string, dev session.DeviceContext) (session.Issued, error) {
	if f.rotateFn != nil {
		return f.rotateFn(ctx, now, rt, dev)
	}
	issued := canonicalIssued()
	issued.RefreshToken = "rt-2"
	issued.CSRFToken = ""
	return issued, nil
}

func (f *fakeSessions) VerifyCSRF(ctx context.Context, sessionID, presented string) (string, time.Time, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, sessionID, presented)
	}
	return "", time.Time{}, session.ErrCSRFMismatch
}

func (f *fakeSessions) VerifyCSRFByRefreshToken(ctx context.Context, rt, presented string) (string, time.Time, error) {
	if f.verifyByRTFn != nil {
		return f.verifyByRTFn(ctx, rt, presented)
	}
	return "", time.Time{}, session.ErrCSRFMismatch
}

func (f *fakeSessions) CheckSession(ctx context.Context, now time.Time, sessionID, userID string) (session.Row, error) {
	if f.checkFn != nil {
		return f.checkFn(ctx, now, sessionID, userID)
	}
	return session.Row{ID: sessionID, UserID: userID, ExpiresAt: now.Add(time.Hour)}, nil
}

func (f *fakeSessions) Revoke(_ context.Context, _ time.Time, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, sessionID)
	return nil
}

func (f *fakeSessions) RevokeAllForUser(_ context.Context, _ time.Time, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedAll = append(f.revokedAll, userID)
	return nil
}

func (f *fakeSessions) Touch(context.Context, time.Time, string) error { return nil }

type fakeVerifier struct {
	claims map[string]token.AccessClaims
}

func (f *fakeVerifier) Verify(_ context.Context, tokenStr string, _ time.Time) (token.AccessClaims, error) {
	if c, ok := f.claims[tokenStr]; ok {
		return c, nil
	}
	return token.AccessClaims{}, token.ErrInvalidSignature
}

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureRecorder) Record(_ context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureRecorder) find(action string) []audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audit.Event
	for _, e := range c.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type denyLimiter struct{ retryAfter time.Duration }

func (d denyLimiter) Check(context.Context, string, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: d.retryAfter}, nil
}

func newTestHandler(t *testing.T, users *fakeUsers, sessions *fakeSessions, opts ...HandlerOption) (*Handler, *captureRecorder) {
	t.Helper()
	rec := &captureRecorder{}
	verifier := &fakeVerifier{claims: map[string]token.AccessClaims{
		"at-1": {UserID: "user-1", SessionID: "sess-1"},
	}}
	base := []HandlerOption{
		WithPasswordConfig(testPasswordConfig()),
		WithRecorder(rec),
	}
	h, err := NewHandler(nil, testConfig(), users, sessions, verifier, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, rec
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:4455"
	return req
}

func cookieByName(res *http.Response, name string) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---- register ----

func TestRegister_NativeReturnsTokensInBody(t *testing.T) {
	h, rec := newTestHandler(t, newFakeUsers(), &fakeSessions{})

	w := serve(h, postJSON("/auth/register",
		`{"email":"shopper@example.com","name":"Shopper","password":"correct horse battery","platform":"ios"}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp registerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Session.AccessToken == "" || resp.Session.RefreshToken == "" {
		t.Fatal("native register must return tokens in the body")
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("native register must not set cookies, got %v", w.Result().Cookies())
	}
	if got := rec.find("auth.register"); len(got) != 1 || got[0].Outcome != audit.OutcomeSuccess {
		t.Fatalf("audit events = %+v", got)
	}
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	users := newFakeUsers()
	users.add(identity.User{ID: "user-1", Email: "taken@example.com", EmailNorm: "taken@example.com"}, "x")
	h, rec := newTestHandler(t, users, &fakeSessions{})

	w := serve(h, postJSON("/auth/register",
		`{"email":"Taken@Example.com","name":"Dup","password":"correct horse battery","platform":"web"}`))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got := rec.find("auth.register")
	if len(got) != 1 || got[0].Outcome != audit.OutcomeConflict {
		t.Fatalf("audit events = %+v", got)
	}
}

// ---- login ----

func TestLogin_WebSetsThreeCookies(t *testing.T) {
	pw := testPasswordConfig()
	hash, err := pw.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	users := newFakeUsers()
	users.add(identity.User{ID: "user-1", Email: "shopper@example.com", EmailNorm: "shopper@example.com", Name: "Shopper"}, hash)
	h, _ := newTestHandler(t, users, &fakeSessions{})

	w := serve(h, postJSON("/auth/login",
		`{"email":"shopper@example.com","password":"correct horse battery","platform":"web"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	res := w.Result()
	at := cookieByName(res, "bazaar_at")
	rt := cookieByName(res, "bazaar_rt")
	csrf := cookieByName(res, "bazaar_csrf")
	if at == nil || rt == nil || csrf == nil {
		t.Fatalf("missing cookies: at=%v rt=%v csrf=%v", at, rt, csrf)
	}
	if !at.HttpOnly || !rt.HttpOnly {
		t.Fatal("access and refresh cookies must be HttpOnly")
	}
	if csrf.HttpOnly {
		t.Fatal("csrf cookie must be readable by scripts")
	}
	if csrf.Value != "csrf-1" {
		t.Fatalf("csrf cookie = %q", csrf.Value)
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Session.AccessToken != "" || resp.Session.RefreshToken != "" || resp.Session.CSRFToken != "" {
		t.Fatalf("web login must not return secrets in the body: %+v", resp.Session)
	}
}

func TestLogin_FailuresShareOneBody(t *testing.T) {
	pw := testPasswordConfig()
	hash, err := pw.Hash("the real password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	users := newFakeUsers()
	users.add(identity.User{ID: "user-1", Email: "known@example.com", EmailNorm: "known@example.com"}, hash)
	users.add(identity.User{ID: "user-2", Email: "oauth-only@example.com", EmailNorm: "oauth-only@example.com"}, "")
	h, rec := newTestHandler(t, users, &fakeSessions{})

	bodies := map[string]string{}
	for name, body := range map[string]string{
		"unknown_user":     `{"email":"nobody@example.com","password":"whatever password"}`,
		"wrong_password":   `{"email":"known@example.com","password":"not the password"}`,
		"password_not_set": `{"email":"oauth-only@example.com","password":"whatever password"}`,
	} {
		w := serve(h, postJSON("/auth/login", body))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", name, w.Code)
		}
		bodies[name] = w.Body.String()
	}
	if bodies["unknown_user"] != bodies["wrong_password"] || bodies["wrong_password"] != bodies["password_not_set"] {
		t.Fatalf("401 bodies must be indistinguishable: %v", bodies)
	}

	// The distinguishing detail lives in the audit trail only.
	details := map[string]bool{}
	for _, e := range rec.find("auth.login") {
		details[e.Detail] = true
	}
	for _, want := range []string{"not_found", "bad_password", "password_not_set"} {
		if !details[want] {
			t.Fatalf("missing audit detail %q in %v", want, details)
		}
	}
}

func TestLogin_RateLimited(t *testing.T) {
	h, rec := newTestHandler(t, newFakeUsers(), &fakeSessions{},
		WithLimiter(denyLimiter{retryAfter: 30 * time.Second}))

	w := serve(h, postJSON("/auth/login", `{"email":"x@example.com","password":"whatever password"}`))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("Retry-After = %q", got)
	}
	got := rec.find("auth.login")
	if len(got) != 1 || got[0].Detail != "rate_limited_ip" {
		t.Fatalf("audit events = %+v", got)
	}
}

// ---- refresh ----

func TestRefresh_BodyTokenSkipsCSRF(t *testing.T) {
	sessions := &fakeSessions{
		verifyByRTFn: func(context.Context, string, string) (string, time.Time, error) {
			t.Fatal("CSRF must not be checked for body-token refresh")
			return "", time.Time{}, nil
		},
	}
	h, _ := newTestHandler(t, newFakeUsers(), sessions)

	w := serve(h, postJSON("/auth/refresh", `{"refresh_token":"rt-1","platform":"ios"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp refreshResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Session.RefreshToken != "rt-2" {
		t.Fatalf("refresh token = %q", resp.Session.RefreshToken)
	}
}

func TestRefresh_CookieWithoutCSRFHeaderForbidden(t *testing.T) {
	h, _ := newTestHandler(t, newFakeUsers(), &fakeSessions{})

	req := postJSON("/auth/refresh", "")
	req.ContentLength = 0
	req.AddCookie(&http.Cookie{Name: "bazaar_rt", Value: "rt-1"})

	w := serve(h, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestRefresh_CookieHappyPathRotatesCSRFCookie(t *testing.T) {
	sessions := &fakeSessions{
		verifyByRTFn: func(_ context.Context, rt, presented string) (string, time.Time, error) {
			if rt != "rt-1" || presented != "csrf-1" {
				return "", time.Time{}, session.ErrCSRFMismatch
			}
			return "csrf-2", time.Now().Add(7 * 24 * time.Hour), nil
		},
	}
	h, _ := newTestHandler(t, newFakeUsers(), sessions)

	req := postJSON("/auth/refresh", "")
	req.ContentLength = 0
	req.AddCookie(&http.Cookie{Name: "bazaar_rt", Value: "rt-1"})
	req.Header.Set("X-CSRF-Token", "csrf-1")

	w := serve(h, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	res := w.Result()
	if c := cookieByName(res, "bazaar_rt"); c == nil || c.Value != "rt-2" {
		t.Fatalf("refresh cookie = %v", c)
	}
	if c := cookieByName(res, "bazaar_csrf"); c == nil || c.Value != "csrf-2" {
		t.Fatalf("csrf cookie = %v", c)
	}
	var resp refreshResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Session.RefreshToken != "" || resp.Session.AccessToken != "" {
		t.Fatal("cookie refresh must not return secrets in the body")
	}
}

func TestRefresh_ReplayClearsCookies(t *testing.T) {
	sessions := &fakeSessions{
		verifyByRTFn: func(context.Context, string, string) (string, time.Time, error) {
			return "", time.Time{}, session.ErrSessionNotFound
		},
		rotateFn: func(context.Context, time.Time, string, session.DeviceContext) (session.Issued, error) {
			return session.Issued{}, session.ErrRefreshReuseDetected
		},
	}
	h, _ := newTestHandler(t, newFakeUsers(), sessions)

	req := postJSON("/auth/refresh", "")
	req.ContentLength = 0
	req.AddCookie(&http.Cookie{Name: "bazaar_rt", Value: "stolen-and-replayed"})
	req.Header.Set("X-CSRF-Token", "whatever")

	w := serve(h, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	rt := cookieByName(w.Result(), "bazaar_rt")
	if rt == nil || rt.MaxAge != -1 {
		t.Fatalf("refresh cookie must be cleared on replay, got %v", rt)
	}
}

// ---- logout / me ----

func TestLogout_BearerRevokesSession(t *testing.T) {
	sessions := &fakeSessions{}
	h, _ := newTestHandler(t, newFakeUsers(), sessions)

	req := postJSON("/auth/logout", "")
	req.ContentLength = 0
	req.Header.Set("Authorization", "Bearer at-1")

	w := serve(h, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(sessions.revoked) != 1 || sessions.revoked[0] != "sess-1" {
		t.Fatalf("revoked = %v", sessions.revoked)
	}
}

func TestLogout_CookieAuthRequiresCSRF(t *testing.T) {
	sessions := &fakeSessions{}
	h, _ := newTestHandler(t, newFakeUsers(), sessions)

	req := postJSON("/auth/logout", "")
	req.ContentLength = 0
	req.AddCookie(&http.Cookie{Name: "bazaar_at", Value: "at-1"})

	w := serve(h, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(sessions.revoked) != 0 {
		t.Fatalf("revoke must not run without CSRF, got %v", sessions.revoked)
	}
}

func TestCSRFGuard_RotatedCookieMatchesRefreshLifetime(t *testing.T) {
	wantExp := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)
	sessions := &fakeSessions{
		verifyFn: func(_ context.Context, sessionID, presented string) (string, time.Time, error) {
			if sessionID != "sess-1" || presented != "csrf-1" {
				return "", time.Time{}, session.ErrCSRFMismatch
			}
			return "csrf-2", wantExp, nil
		},
	}
	h, _ := newTestHandler(t, newFakeUsers(), sessions)

	req := postJSON("/auth/logout", "")
	req.ContentLength = 0
	req.AddCookie(&http.Cookie{Name: "bazaar_at", Value: "at-1"})
	req.Header.Set("X-CSRF-Token", "csrf-1")

	w := serve(h, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	// Logout clears cookies after the guard runs, so pick the rotated one
	// by value.
	var rotated *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "bazaar_csrf" && c.Value == "csrf-2" {
			rotated = c
		}
	}
	if rotated == nil {
		t.Fatalf("rotated csrf cookie missing: %v", w.Result().Cookies())
	}
	if !rotated.Expires.Equal(wantExp) {
		t.Fatalf("csrf cookie expires = %v, want %v", rotated.Expires, wantExp)
	}
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	sessions := &fakeSessions{}
	h, _ := newTestHandler(t, newFakeUsers(), sessions)

	req := postJSON("/auth/logout_all", "")
	req.ContentLength = 0
	req.Header.Set("Authorization", "Bearer at-1")

	w := serve(h, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if len(sessions.revokedAll) != 1 || sessions.revokedAll[0] != "user-1" {
		t.Fatalf("revokedAll = %v", sessions.revokedAll)
	}
}

func TestMe(t *testing.T) {
	users := newFakeUsers()
	users.add(identity.User{ID: "user-1", Email: "shopper@example.com", EmailNorm: "shopper@example.com", Name: "Shopper"}, "x")
	h, _ := newTestHandler(t, users, &fakeSessions{})

	// No credentials.
	w := serve(h, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous /me status = %d", w.Code)
	}

	// Bearer token.
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer at-1")
	w = serve(h, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp meResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.User.ID != "user-1" || resp.User.Email != "shopper@example.com" {
		t.Fatalf("user = %+v", resp.User)
	}
}

func TestRequireAuth_DeadSessionRejected(t *testing.T) {
	sessions := &fakeSessions{
		checkFn: func(context.Context, time.Time, string, string) (session.Row, error) {
			return session.Row{}, session.ErrSessionRevoked
		},
	}
	users := newFakeUsers()
	users.add(identity.User{ID: "user-1", Email: "shopper@example.com", EmailNorm: "shopper@example.com"}, "x")
	h, _ := newTestHandler(t, users, sessions)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer at-1")

	w := serve(h, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked session must fail auth, status = %d", w.Code)
	}
}

func TestClientIP_ProxyHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.20, 10.0.0.1")

	if ip := clientIP(req, false); !ip.Equal(net.ParseIP("203.0.113.9")) {
		t.Fatalf("untrusted proxy: ip = %v", ip)
	}
	if ip := clientIP(req, true); !ip.Equal(net.ParseIP("198.51.100.20")) {
		t.Fatalf("trusted proxy: ip = %v", ip)
	}
}
