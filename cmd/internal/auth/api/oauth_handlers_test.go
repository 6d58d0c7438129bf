package authapi

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/auth/oauth"
)

type fakeExchanger struct {
	startFn    func(ctx context.Context, now time.Time, provider oauth.Provider, redirectTo string, clientIP net.IP) (string, error)
	callbackFn func(ctx context.Context, now time.Time, provider oauth.Provider, code, state string) (oauth.Identity, string, error)
}

func (f *fakeExchanger) Start(ctx context.Context, now time.Time, p oauth.Provider, redirectTo string, ip net.IP) (string, error) {
	if f.startFn != nil {
		return f.startFn(ctx, now, p, redirectTo, ip)
	}
	return "https://provider.example/authorize?state=abc", nil
}

func (f *fakeExchanger) Callback(ctx context.Context, now time.Time, p oauth.Provider, code, state string) (oauth.Identity, string, error) {
	if f.callbackFn != nil {
		return f.callbackFn(ctx, now, p, code, state)
	}
	return oauth.Identity{Provider: p, Subject: "sub-1", Email: "shopper@example.com", Name: "Shopper"}, "/account", nil
}

func TestOAuthStart_RedirectsToProvider(t *testing.T) {
	h, _ := newTestHandler(t, newFakeUsers(), &fakeSessions{}, WithOAuth(&fakeExchanger{}))

	req := httptest.NewRequest(http.MethodGet, "/auth/oauth/google/start?redirect_to=/cart", nil)
	w := serve(h, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "https://provider.example/authorize?state=abc" {
		t.Fatalf("Location = %q", loc)
	}
}

func TestOAuth_UnknownProvider(t *testing.T) {
	h, _ := newTestHandler(t, newFakeUsers(), &fakeSessions{}, WithOAuth(&fakeExchanger{}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/auth/oauth/myspace/start", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestOAuth_NotConfigured(t *testing.T) {
	h, _ := newTestHandler(t, newFakeUsers(), &fakeSessions{})

	w := serve(h, httptest.NewRequest(http.MethodGet, "/auth/oauth/google/start", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestOAuthCallback_HappyPathSetsCookiesAndRedirects(t *testing.T) {
	users := newFakeUsers()
	h, rec := newTestHandler(t, users, &fakeSessions{}, WithOAuth(&fakeExchanger{}))

	req := httptest.NewRequest(http.MethodGet, "/auth/oauth/github/callback?code=c1&state=s1", nil)
	w := serve(h, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/account" {
		t.Fatalf("Location = %q", loc)
	}
	res := w.Result()
	if cookieByName(res, "bazaar_at") == nil || cookieByName(res, "bazaar_rt") == nil || cookieByName(res, "bazaar_csrf") == nil {
		t.Fatalf("callback must establish the full cookie session, got %v", res.Cookies())
	}
	if _, err := users.GetUserAuthByEmail(context.Background(), "shopper@example.com"); err != nil {
		t.Fatalf("user was not provisioned: %v", err)
	}
	events := rec.find("auth.oauth.callback")
	if len(events) != 1 || events[0].Outcome != "success" {
		t.Fatalf("audit events = %+v", events)
	}
}

func TestOAuthCallback_LinksExistingAccountByEmail(t *testing.T) {
	users := newFakeUsers()
	existing := identity.User{ID: "user-9", Email: "shopper@example.com", EmailNorm: "shopper@example.com", Name: "Shopper"}
	users.add(existing, "some-hash")
	h, _ := newTestHandler(t, users, &fakeSessions{}, WithOAuth(&fakeExchanger{}))

	req := httptest.NewRequest(http.MethodGet, "/auth/oauth/google/callback?code=c1&state=s1", nil)
	w := serve(h, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	u, err := users.GetUserByID(context.Background(), "user-9")
	if err != nil || u.ID != existing.ID {
		t.Fatalf("existing account must be reused, got %v err %v", u, err)
	}
}

func TestOAuthCallback_InvalidState(t *testing.T) {
	ex := &fakeExchanger{
		callbackFn: func(context.Context, time.Time, oauth.Provider, string, string) (oauth.Identity, string, error) {
			return oauth.Identity{}, "", oauth.ErrInvalidState
		},
	}
	h, rec := newTestHandler(t, newFakeUsers(), &fakeSessions{}, WithOAuth(ex))

	// A replayed state behaves exactly like an unknown one: both requests
	// get the same 400 and the same generic body.
	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/auth/oauth/google/callback?code=c1&state=replayed", nil)
		w := serve(h, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: status = %d, body %s", i, w.Code, w.Body.String())
		}
		bodies = append(bodies, w.Body.String())
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("replay response differs: %q vs %q", bodies[0], bodies[1])
	}
	events := rec.find("auth.oauth.callback")
	if len(events) != 2 || events[0].Detail != "invalid_state" {
		t.Fatalf("audit events = %+v", events)
	}
}

func TestOAuthCallback_UpstreamFailureIsBadGateway(t *testing.T) {
	ex := &fakeExchanger{
		callbackFn: func(context.Context, time.Time, oauth.Provider, string, string) (oauth.Identity, string, error) {
			return oauth.Identity{}, "", oauth.ErrExchangeFailed
		},
	}
	h, _ := newTestHandler(t, newFakeUsers(), &fakeSessions{}, WithOAuth(ex))

	req := httptest.NewRequest(http.MethodGet, "/auth/oauth/google/callback?code=c1&state=s1", nil)
	w := serve(h, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestOAuthCallback_MissingParams(t *testing.T) {
	h, _ := newTestHandler(t, newFakeUsers(), &fakeSessions{}, WithOAuth(&fakeExchanger{}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/auth/oauth/google/callback?code=c1", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
