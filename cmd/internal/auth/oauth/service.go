package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bazaar/cmd/internal/audit"
)

const stateBytes = 32
const verifierBytes = 32

// Recorder receives audit events for exchange failures.
type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}

// Service drives the PKCE exchange against the configured providers.
type Service struct {
	cfg       Config
	store     Store
	endpoints map[Provider]Endpoints
	client    *http.Client
	rec       Recorder
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithEndpoints overrides one provider's URLs (tests point them at fakes).
func WithEndpoints(p Provider, e Endpoints) Option {
	return func(s *Service) { s.endpoints[p] = e }
}

// WithHTTPClient overrides the outbound HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithRecorder wires exchange-failure auditing.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.rec = r }
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		store:     store,
		endpoints: defaultEndpoints(),
		client:    &http.Client{Timeout: cfg.ExchangeTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start begins an exchange: persists a one-time request row and returns the
// provider authorization URL the client should be redirected to.
func (s *Service) Start(ctx context.Context, now time.Time, provider Provider, redirectTo string, clientIP net.IP) (string, error) {
	creds, ok := s.cfg.Providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	ep := s.endpoints[provider]

	state, err := newRandomToken(stateBytes)
	if err != nil {
		return "", err
	}
	verifier, err := newRandomToken(verifierBytes)
	if err != nil {
		return "", err
	}

	req := Request{
		State:        state,
		Provider:     provider,
		CodeVerifier: verifier,
		RedirectTo:   SanitizeRedirect(redirectTo),
		ClientIP:     clientIP,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.RequestTTL),
	}
	if err := s.store.Create(ctx, req); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", creds.ClientID)
	q.Set("redirect_uri", s.callbackURL(provider))
	q.Set("scope", ep.Scopes)
	q.Set("state", state)
	q.Set("code_challenge", challengeS256(verifier))
	q.Set("code_challenge_method", "S256")

	return ep.AuthorizeURL + "?" + q.Encode(), nil
}

// Callback redeems a state exactly once and exchanges the authorization code
// for a provider identity.
//
// The request row is consumed before the provider is contacted, so a crashed
// or retried exchange can never be replayed, even on failure. The returned
// redirect path was sanitized at Start time.
func (s *Service) Callback(ctx context.Context, now time.Time, provider Provider, code, state string) (Identity, string, error) {
	if code == "" || state == "" {
		return Identity{}, "", ErrInvalidState
	}
	creds, ok := s.cfg.Providers[provider]
	if !ok {
		return Identity{}, "", ErrUnknownProvider
	}

	req, err := s.store.Consume(ctx, state, now)
	if err != nil {
		return Identity{}, "", err
	}
	if req.Provider != provider {
		return Identity{}, "", ErrInvalidState
	}

	accessToken, err := s.exchangeCode(ctx, provider, creds, code, req.CodeVerifier)
	if err != nil {
		s.auditFailure(ctx, provider, "token_exchange_failed")
		return Identity{}, "", err
	}

	id, err := s.fetchIdentity(ctx, provider, accessToken)
	if err != nil {
		s.auditFailure(ctx, provider, "userinfo_failed")
		return Identity{}, "", err
	}

	return id, req.RedirectTo, nil
}

func (s *Service) callbackURL(provider Provider) string {
	return s.cfg.RedirectBase + "/auth/oauth/" + string(provider) + "/callback"
}

func (s *Service) exchangeCode(ctx context.Context, provider Provider, creds Credentials, code, verifier string) (string, error) {
	ep := s.endpoints[provider]

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.callbackURL(provider))
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("code_verifier", verifier)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: token endpoint status %d", ErrExchangeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	// Strict shape: an access token is required, everything else may vary
	// between providers.
	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: malformed token payload", ErrExchangeFailed)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}
	return payload.AccessToken, nil
}

func (s *Service) fetchIdentity(ctx context.Context, provider Provider, accessToken string) (Identity, error) {
	ep := s.endpoints[provider]

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.UserinfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Identity{}, fmt.Errorf("%w: userinfo status %d", ErrExchangeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	id, err := parseIdentity(provider, body)
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

func parseIdentity(provider Provider, body []byte) (Identity, error) {
	switch provider {
	case ProviderGoogle:
		var u struct {
			Sub   string `json:"sub"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(body, &u); err != nil || u.Sub == "" || u.Email == "" {
			return Identity{}, fmt.Errorf("%w: malformed userinfo payload", ErrExchangeFailed)
		}
		return Identity{Provider: provider, Subject: u.Sub, Email: u.Email, Name: u.Name}, nil

	case ProviderGitHub:
		var u struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(body, &u); err != nil || u.ID == 0 || u.Email == "" {
			return Identity{}, fmt.Errorf("%w: malformed userinfo payload", ErrExchangeFailed)
		}
		name := u.Name
		if name == "" {
			name = u.Login
		}
		return Identity{Provider: provider, Subject: strconv.FormatInt(u.ID, 10), Email: u.Email, Name: name}, nil
	}
	return Identity{}, ErrUnknownProvider
}

// SanitizeRedirect restricts post-login redirects to same-origin-relative
// paths. Anything else collapses to "/".
func SanitizeRedirect(path string) string {
	if path == "" || !strings.HasPrefix(path, "/") {
		return "/"
	}
	// "//host" and "/\host" are scheme-relative escapes in browsers.
	if strings.HasPrefix(path, "//") || strings.ContainsAny(path, "\\") {
		return "/"
	}
	if u, err := url.Parse(path); err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return path
}

func (s *Service) auditFailure(ctx context.Context, provider Provider, detail string) {
	if s.rec == nil {
		return
	}
	s.rec.Record(ctx, audit.Event{
		Action:   "auth.oauth.exchange",
		Resource: "oauth",
		Outcome:  audit.OutcomeError,
		Detail:   detail,
		Metadata: map[string]string{"provider": string(provider)},
	})
}
