package authapi

import (
	"net/http"
	"strings"
	"time"

	"bazaar/cmd/internal/auth/session"
)

func (h *Handler) shouldUseWebCookieTransport(platform session.Platform) bool {
	return h != nil && h.cfg.WebCookiesEnabled && platform == session.PlatformWeb
}

// setWebSessionCookies installs the three-cookie web transport: HttpOnly
// access and refresh cookies plus a script-readable CSRF cookie. On rotation
// issued.CSRFToken is empty and the existing CSRF cookie is left alone.
func (h *Handler) setWebSessionCookies(w http.ResponseWriter, issued session.Issued) {
	h.setCookie(w, h.cfg.AccessCookieName, issued.AccessToken, issued.AccessExp, true)
	h.setCookie(w, h.cfg.RefreshCookieName, issued.RefreshToken, issued.RefreshExp, true)
	if issued.CSRFToken != "" {
		h.setCSRFCookie(w, issued.CSRFToken, issued.RefreshExp)
	}
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, value string, exp time.Time) {
	h.setCookie(w, h.cfg.CSRFCookieName, value, exp, false)
}

func (h *Handler) clearWebSessionCookies(w http.ResponseWriter) {
	if h == nil || w == nil || !h.cfg.WebCookiesEnabled {
		return
	}
	h.expireCookie(w, h.cfg.AccessCookieName, true)
	h.expireCookie(w, h.cfg.RefreshCookieName, true)
	h.expireCookie(w, h.cfg.CSRFCookieName, false)
}

func (h *Handler) refreshTokenFromCookie(r *http.Request) (string, bool) {
	return h.cookieValue(r, h.cfg.RefreshCookieName)
}

func (h *Handler) accessTokenFromCookie(r *http.Request) (string, bool) {
	return h.cookieValue(r, h.cfg.AccessCookieName)
}

func (h *Handler) cookieValue(r *http.Request, name string) (string, bool) {
	if h == nil || r == nil || !h.cfg.WebCookiesEnabled || name == "" {
		return "", false
	}
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time, httpOnly bool) {
	if h == nil || w == nil || name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string, httpOnly bool) {
	if h == nil || w == nil || strings.TrimSpace(name) == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}
