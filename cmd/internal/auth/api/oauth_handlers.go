package authapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/audit"
	"bazaar/cmd/internal/auth/oauth"
	"bazaar/cmd/internal/auth/session"
)

// handleOAuth dispatches /auth/oauth/{provider}/{start|callback}.
func (h *Handler) handleOAuth(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusNotFound, "not_found", "oauth is not configured")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/auth/oauth/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	provider, err := oauth.ParseProvider(parts[0])
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_provider", "unknown provider")
		return
	}

	switch parts[1] {
	case "start":
		h.handleOAuthStart(w, r, provider)
	case "callback":
		h.handleOAuthCallback(w, r, provider)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleOAuthStart(w http.ResponseWriter, r *http.Request, provider oauth.Provider) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	if d, ok := h.allow(ctx, "auth.oauth.start", "ip:"+ipKey(ip)); !ok {
		writeRateLimited(w, d.RetryAfter)
		return
	}

	authorizeURL, err := h.oauth.Start(ctx, now, provider, r.URL.Query().Get("redirect_to"), ip)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, "unknown_provider", "unknown provider")
			return
		}
		h.log.Error("auth.oauth.start.fail", "provider", string(provider), "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request, provider oauth.Provider) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if d, ok := h.allow(ctx, "auth.oauth.callback", "ip:"+ipKey(ip)); !ok {
		writeRateLimited(w, d.RetryAfter)
		return
	}

	q := r.URL.Query()
	code := strings.TrimSpace(q.Get("code"))
	state := strings.TrimSpace(q.Get("state"))
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code and state are required")
		return
	}

	ident, redirectTo, err := h.oauth.Callback(ctx, now, provider, code, state)
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrInvalidState):
			metricOAuthCallbacks.WithLabelValues("invalid_state").Inc()
			h.audit(ctx, audit.Event{
				Action: "auth.oauth.callback", Resource: "oauth",
				Outcome: audit.OutcomeFailure, Detail: "invalid_state",
				Metadata: mergeMeta(requestMeta(ip, ua), "provider", string(provider)),
			})
			// Replayed and expired states look identical to unknown ones.
			writeError(w, http.StatusBadRequest, "invalid_state", "state is missing, expired, or already used")
		case errors.Is(err, oauth.ErrExchangeFailed):
			// Exchange failures are audited inside the oauth service.
			metricOAuthCallbacks.WithLabelValues("exchange_failed").Inc()
			writeError(w, http.StatusBadGateway, "upstream_error", "provider exchange failed")
		default:
			h.log.Error("auth.oauth.callback.fail", "provider", string(provider), "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	user, err := h.users.FindOrCreateOAuthUser(ctx, identity.OAuthIdentity{
		Provider: string(provider),
		Subject:  ident.Subject,
		Email:    ident.Email,
		Name:     ident.Name,
	}, now)
	if err != nil {
		if identity.IsConflict(err) {
			metricOAuthCallbacks.WithLabelValues("conflict").Inc()
			writeError(w, http.StatusConflict, "account_conflict", "account could not be linked")
			return
		}
		h.log.Error("auth.oauth.link.fail", "provider", string(provider), "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	dev := session.DeviceContext{Platform: session.PlatformWeb, UserAgent: ua, IP: ip}
	issued, err := h.sessions.Issue(ctx, now, user.ID, dev)
	if err != nil {
		// The identity exists but no session could be persisted. Send the
		// browser back with clean cookies; the user can sign in again.
		h.log.Error("auth.oauth.issue_session.fail", "provider", string(provider), "err", err)
		metricOAuthCallbacks.WithLabelValues("error").Inc()
		h.audit(ctx, audit.Event{
			Action: "auth.oauth.callback", ActorID: user.ID, Resource: "oauth",
			Outcome: audit.OutcomeError, Detail: "session_persist_failed",
			Metadata: mergeMeta(requestMeta(ip, ua), "provider", string(provider)),
		})
		h.clearWebSessionCookies(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	metricOAuthCallbacks.WithLabelValues("success").Inc()
	h.audit(ctx, audit.Event{
		Action: "auth.oauth.callback", ActorID: user.ID, ActorEmail: user.EmailNorm,
		Resource: "session", ResourceID: issued.SessionID,
		Outcome:  audit.OutcomeSuccess,
		Metadata: mergeMeta(requestMeta(ip, ua), "provider", string(provider)),
	})

	h.setWebSessionCookies(w, issued)
	http.Redirect(w, r, oauth.SanitizeRedirect(redirectTo), http.StatusSeeOther)
}

func mergeMeta(meta map[string]string, kv ...string) map[string]string {
	for i := 0; i+1 < len(kv); i += 2 {
		meta[kv[i]] = kv[i+1]
	}
	return meta
}
