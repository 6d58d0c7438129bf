package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/audit"
	"bazaar/cmd/internal/auth/oauth"
	"bazaar/cmd/internal/auth/reset"
	"bazaar/cmd/internal/auth/session"
	"bazaar/cmd/internal/auth/token"
	"bazaar/cmd/internal/ratelimit"
	"bazaar/cmd/security/password"
)

// SessionService is the session lifecycle surface the handlers need.
// *session.Service satisfies it; tests inject fakes.
type SessionService interface {
	Issue(ctx context.Context, now time.Time, userID string, dev session.DeviceContext) (session.Issued, error)
	Rotate(ctx context.Context, now time.Time, refreshTokenPlain string, dev session.DeviceContext) (session.Issued, error)
	VerifyCSRF(ctx context.Context, sessionID, presented string) (string, time.Time, error)
	VerifyCSRFByRefreshToken(ctx context.Context, refreshTokenPlain, presented string) (string, time.Time, error)
	CheckSession(ctx context.Context, now time.Time, sessionID, userID string) (session.Row, error)
	Revoke(ctx context.Context, now time.Time, sessionID string) error
	RevokeAllForUser(ctx context.Context, now time.Time, userID string) error
	Touch(ctx context.Context, now time.Time, sessionID string) error
}

// TokenVerifier validates access tokens. *token.Manager satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenStr string, now time.Time) (token.AccessClaims, error)
}

// OAuthExchanger drives the provider redirect flow. *oauth.Service satisfies it.
type OAuthExchanger interface {
	Start(ctx context.Context, now time.Time, provider oauth.Provider, redirectTo string, clientIP net.IP) (string, error)
	Callback(ctx context.Context, now time.Time, provider oauth.Provider, code, state string) (oauth.Identity, string, error)
}

// PasswordResetService issues and redeems single-use reset tokens.
// *reset.Service satisfies it.
type PasswordResetService interface {
	Issue(ctx context.Context, now time.Time, userID string) (reset.Token, string, error)
	Redeem(ctx context.Context, now time.Time, plain string) (reset.Token, error)
}

// Handler wires HTTP auth endpoints to identity/session/oauth services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions SessionService
	tokens   TokenVerifier
	oauth    OAuthExchanger
	resets   PasswordResetService

	limiter ratelimit.Limiter
	rec     Recorder

	emailSender EmailSender
	captcha     CaptchaVerifier

	pw        password.Config
	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithOAuth enables the provider start/callback endpoints.
func WithOAuth(o OAuthExchanger) HandlerOption {
	return func(h *Handler) {
		if h == nil || o == nil {
			return
		}
		h.oauth = o
	}
}

// WithPasswordResets enables the forgot/reset password endpoints.
func WithPasswordResets(s PasswordResetService) HandlerOption {
	return func(h *Handler) {
		if h == nil || s == nil {
			return
		}
		h.resets = s
	}
}

// WithLimiter overrides the default no-op rate limiter.
func WithLimiter(l ratelimit.Limiter) HandlerOption {
	return func(h *Handler) {
		if h == nil || l == nil {
			return
		}
		h.limiter = l
	}
}

// WithRecorder wires audit recording.
func WithRecorder(r Recorder) HandlerOption {
	return func(h *Handler) {
		if h == nil || r == nil {
			return
		}
		h.rec = r
	}
}

// WithCaptchaVerifier overrides the default no-op captcha verifier.
func WithCaptchaVerifier(verifier CaptchaVerifier) HandlerOption {
	return func(h *Handler) {
		if h == nil || verifier == nil {
			return
		}
		h.captcha = verifier
	}
}

// WithEmailSender overrides the default no-op email sender.
func WithEmailSender(sender EmailSender) HandlerOption {
	return func(h *Handler) {
		if h == nil || sender == nil {
			return
		}
		h.emailSender = sender
	}
}

// WithPasswordConfig overrides the Argon2id parameters used for the login
// dummy verify. Must match the identity store's parameters.
func WithPasswordConfig(cfg password.Config) HandlerOption {
	return func(h *Handler) {
		if h == nil {
			return
		}
		h.pw = cfg
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions SessionService, tokens TokenVerifier, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil || sessions == nil || tokens == nil {
		return nil, errors.New("auth: nil dependency")
	}

	h := &Handler{
		log:         log,
		cfg:         cfg,
		users:       users,
		sessions:    sessions,
		tokens:      tokens,
		limiter:     ratelimit.NoopLimiter{},
		emailSender: NoopEmailSender{},
		captcha:     NoopCaptchaVerifier{},
		pw:          password.DefaultConfig(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := h.pw.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout_all", h.handleLogoutAll)
	mux.HandleFunc("/auth/oauth/", h.handleOAuth)
	mux.HandleFunc("/auth/password/forgot", h.handleForgotPassword)
	mux.HandleFunc("/auth/password/reset", h.handleResetPassword)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	emailNorm := identity.NormalizeEmail(req.Email)

	if d, ok := h.allow(ctx, "auth.register", "ip:"+ipKey(ip)); !ok {
		h.audit(ctx, audit.Event{
			Action: "auth.register", ActorEmail: emailNorm,
			Outcome: audit.OutcomeFailure, Detail: "rate_limited",
			Metadata: requestMeta(ip, ua),
		})
		writeRateLimited(w, d.RetryAfter)
		return
	}

	if err := h.enforceCaptcha(ctx, req.Captcha, ip); err != nil {
		switch {
		case errors.Is(err, ErrCaptchaRequired), errors.Is(err, ErrCaptchaInvalid):
			h.audit(ctx, audit.Event{
				Action: "auth.register", ActorEmail: emailNorm,
				Outcome: audit.OutcomeFailure, Detail: "captcha_invalid",
				Metadata: requestMeta(ip, ua),
			})
			writeError(w, http.StatusForbidden, "captcha_invalid", "captcha verification failed")
		default:
			h.log.Error("auth.register.captcha.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		}
		return
	}

	user, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Now:      now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			metricRegistrations.WithLabelValues("conflict").Inc()
			h.audit(ctx, audit.Event{
				Action: "auth.register", ActorEmail: emailNorm,
				Outcome: audit.OutcomeConflict, Detail: "email_taken",
				Metadata: requestMeta(ip, ua),
			})
			writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	dev := session.DeviceContext{
		Platform:   normalizePlatform(req.Platform),
		RememberMe: req.RememberMe,
		UserAgent:  ua,
		IP:         ip,
	}
	issued, err := h.sessions.Issue(ctx, now, user.ID, dev)
	if err != nil {
		h.log.Error("auth.register.issue_session.fail", "err", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	metricRegistrations.WithLabelValues("success").Inc()
	h.audit(ctx, audit.Event{
		Action: "auth.register", ActorID: user.ID, ActorEmail: user.EmailNorm,
		Resource: "session", ResourceID: issued.SessionID,
		Outcome: audit.OutcomeSuccess, Metadata: requestMeta(ip, ua),
	})
	h.maybeSendWelcome(ctx, user)

	respSession := toSessionResponse(issued)
	if h.shouldUseWebCookieTransport(dev.Platform) {
		h.setWebSessionCookies(w, issued)
		respSession.AccessToken = ""
		respSession.RefreshToken = ""
		respSession.CSRFToken = ""
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		User:    toUserResponse(user),
		Session: respSession,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := identity.NormalizeEmail(req.Email)
	pass := strings.TrimSpace(req.Password)
	if email == "" || pass == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	// Throttle by source address and by target account, before any DB work.
	if d, ok := h.allow(ctx, "auth.login", "ip:"+ipKey(ip)); !ok {
		h.auditLoginFailed(ctx, "", email, ip, ua, "rate_limited_ip")
		writeRateLimited(w, d.RetryAfter)
		return
	}
	if d, ok := h.allow(ctx, "auth.login", "email:"+email); !ok {
		h.auditLoginFailed(ctx, "", email, ip, ua, "rate_limited_account")
		writeRateLimited(w, d.RetryAfter)
		return
	}

	if err := h.enforceCaptcha(ctx, req.Captcha, ip); err != nil {
		switch {
		case errors.Is(err, ErrCaptchaRequired), errors.Is(err, ErrCaptchaInvalid):
			h.auditLoginFailed(ctx, "", email, ip, ua, "captcha_invalid")
			writeError(w, http.StatusForbidden, "captcha_invalid", "captcha verification failed")
		default:
			h.log.Error("auth.login.captcha.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		}
		return
	}

	userAuth, err := h.users.GetUserAuthByEmail(ctx, email)
	if err != nil {
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = h.pw.Verify(h.dummyHash, pass)
		}
		metricLogins.WithLabelValues("failure").Inc()
		h.auditLoginFailed(ctx, "", email, ip, ua, "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	if userAuth.PasswordHash == "" {
		// Provider-only account: no local credential to check against.
		if h.dummyHash != "" {
			_, _ = h.pw.Verify(h.dummyHash, pass)
		}
		metricLogins.WithLabelValues("failure").Inc()
		h.auditLoginFailed(ctx, userAuth.User.ID, email, ip, ua, "password_not_set")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	okPw, err := h.pw.Verify(userAuth.PasswordHash, pass)
	if err != nil || !okPw {
		metricLogins.WithLabelValues("failure").Inc()
		h.auditLoginFailed(ctx, userAuth.User.ID, email, ip, ua, "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	dev := session.DeviceContext{
		Platform:   normalizePlatform(req.Platform),
		RememberMe: req.RememberMe,
		UserAgent:  ua,
		IP:         ip,
	}
	issued, err := h.sessions.Issue(ctx, now, userAuth.User.ID, dev)
	if err != nil {
		h.log.Error("auth.login.issue_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	metricLogins.WithLabelValues("success").Inc()
	h.audit(ctx, audit.Event{
		Action: "auth.login", ActorID: userAuth.User.ID, ActorEmail: email,
		Resource: "session", ResourceID: issued.SessionID,
		Outcome: audit.OutcomeSuccess, Metadata: requestMeta(ip, ua),
	})

	respSession := toSessionResponse(issued)
	if h.shouldUseWebCookieTransport(dev.Platform) {
		h.setWebSessionCookies(w, issued)
		respSession.AccessToken = ""
		respSession.RefreshToken = ""
		respSession.CSRFToken = ""
	}

	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(userAuth.User),
		Session: respSession,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if cookieToken, ok := h.refreshTokenFromCookie(r); ok {
		fromCookie = true
		if refreshToken == "" {
			refreshToken = cookieToken
		}
	}
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if d, ok := h.allow(ctx, "auth.refresh", "ip:"+ipKey(ip)); !ok {
		writeRateLimited(w, d.RetryAfter)
		return
	}

	// Cookie transport means the browser attached the token on its own; the
	// CSRF check must pass before the token is allowed to rotate anything.
	var rotatedCSRF string
	if fromCookie {
		presented := r.Header.Get(h.cfg.CSRFHeaderName)
		newCSRF, _, err := h.sessions.VerifyCSRFByRefreshToken(ctx, refreshToken, presented)
		switch {
		case err == nil:
			rotatedCSRF = newCSRF
		case errors.Is(err, session.ErrSessionNotFound):
			// Unknown digest: fall through so Rotate can classify a replay.
		case errors.Is(err, session.ErrCSRFMismatch), errors.Is(err, session.ErrSessionRevoked):
			metricCSRFFailures.Inc()
			writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
			return
		default:
			h.log.Error("auth.refresh.csrf.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
	}

	dev := session.DeviceContext{
		Platform:   normalizePlatform(req.Platform),
		RememberMe: req.RememberMe,
		UserAgent:  ua,
		IP:         ip,
	}
	issued, err := h.sessions.Rotate(ctx, now, refreshToken, dev)
	if err != nil {
		metricRefreshes.WithLabelValues("failure").Inc()
		switch {
		case errors.Is(err, session.ErrRefreshReuseDetected), errors.Is(err, session.ErrSessionQuarantined):
			// Replay incidents are audited inside the session service. The
			// client sees the same generic 401 as any dead session.
			if fromCookie {
				h.clearWebSessionCookies(w)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "session not active")
		case errors.Is(err, session.ErrSessionExpired),
			errors.Is(err, session.ErrSessionRevoked),
			errors.Is(err, session.ErrSessionNotFound):
			if fromCookie {
				h.clearWebSessionCookies(w)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "session not active")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	metricRefreshes.WithLabelValues("success").Inc()
	h.audit(ctx, audit.Event{
		Action: "auth.refresh",
		Resource: "session", ResourceID: issued.SessionID,
		Outcome: audit.OutcomeSuccess, Metadata: requestMeta(ip, ua),
	})

	respSession := toSessionResponse(issued)
	if fromCookie || h.shouldUseWebCookieTransport(dev.Platform) {
		h.setWebSessionCookies(w, issued)
		if rotatedCSRF != "" {
			h.setCSRFCookie(w, rotatedCSRF, issued.RefreshExp)
		}
		respSession.AccessToken = ""
		respSession.RefreshToken = ""
		respSession.CSRFToken = ""
	}

	writeJSON(w, http.StatusOK, refreshResponse{Session: respSession})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, fromCookie, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	if fromCookie && !h.csrfGuard(w, r, claims.SessionID) {
		return
	}

	if err := h.sessions.Revoke(ctx, now, claims.SessionID); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit(ctx, audit.Event{
		Action: "auth.logout", ActorID: claims.UserID,
		Resource: "session", ResourceID: claims.SessionID,
		Outcome:  audit.OutcomeSuccess,
		Metadata: requestMeta(clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent())),
	})
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, fromCookie, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	if fromCookie && !h.csrfGuard(w, r, claims.SessionID) {
		return
	}

	if err := h.sessions.RevokeAllForUser(ctx, now, claims.UserID); err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit(ctx, audit.Event{
		Action: "auth.logout_all", ActorID: claims.UserID,
		Outcome:  audit.OutcomeSuccess,
		Metadata: requestMeta(clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent())),
	})
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, _, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	u, err := h.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// Best-effort activity marker.
	_ = h.sessions.Touch(ctx, time.Now().UTC(), claims.SessionID)

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

// requireAuth authenticates the request from a bearer header or the access
// cookie. Claims are checked against live session state, so a revoked or
// quarantined session fails even while its token is cryptographically valid.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (token.AccessClaims, bool, bool) {
	tok := bearerToken(r)
	fromCookie := false
	if tok == "" {
		if v, ok := h.accessTokenFromCookie(r); ok {
			tok = v
			fromCookie = true
		}
	}
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return token.AccessClaims{}, false, false
	}

	now := time.Now().UTC()
	claims, err := h.tokens.Verify(r.Context(), tok, now)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return token.AccessClaims{}, false, false
	}
	if _, err := h.sessions.CheckSession(r.Context(), now, claims.SessionID, claims.UserID); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return token.AccessClaims{}, false, false
	}
	return claims, fromCookie, true
}

// csrfGuard enforces the CSRF check for cookie-authenticated state changes.
// A passing check rotates the secret; the fresh value replaces the cookie.
func (h *Handler) csrfGuard(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	presented := r.Header.Get(h.cfg.CSRFHeaderName)
	newCSRF, refreshExp, err := h.sessions.VerifyCSRF(r.Context(), sessionID, presented)
	if err != nil {
		if errors.Is(err, session.ErrCSRFMismatch) || errors.Is(err, session.ErrSessionRevoked) {
			metricCSRFFailures.Inc()
			writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
			return false
		}
		h.log.Error("auth.csrf.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return false
	}
	// The replacement cookie lives as long as the refresh cookie; the
	// stored digest stays authoritative and dies with the session.
	h.setCSRFCookie(w, newCSRF, refreshExp)
	return true
}

func (h *Handler) auditLoginFailed(ctx context.Context, actorID, email string, ip net.IP, ua, detail string) {
	h.audit(ctx, audit.Event{
		Action: "auth.login", ActorID: actorID, ActorEmail: email,
		Outcome: audit.OutcomeFailure, Detail: detail,
		Metadata: requestMeta(ip, ua),
	})
}

func (h *Handler) enforceCaptcha(ctx context.Context, tok string, ip net.IP) error {
	if h == nil || !h.cfg.EnableCaptcha {
		return nil
	}
	tok = normalizeCaptchaToken(tok)
	if tok == "" {
		return ErrCaptchaRequired
	}
	if h.captcha == nil {
		return errors.New("captcha verifier not configured")
	}
	if err := h.captcha.Verify(ctx, tok, ip); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return ErrCaptchaInvalid
	}
	return nil
}

func (h *Handler) maybeSendWelcome(ctx context.Context, user identity.User) {
	if h == nil || h.emailSender == nil || user.Email == "" {
		return
	}
	if err := h.emailSender.SendWelcome(ctx, WelcomeMessage{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}); err != nil {
		h.log.Error("auth.welcome_email.send.fail", "err", err, "user_id", user.ID)
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func normalizePlatform(p string) session.Platform {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "web":
		return session.PlatformWeb
	case "ios":
		return session.PlatformIOS
	case "android":
		return session.PlatformAndroid
	case "desktop":
		return session.PlatformDesktop
	default:
		return session.PlatformUnknown
	}
}

func ipKey(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
