package authapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/audit"
	"bazaar/cmd/internal/auth/reset"
)

// handleForgotPassword accepts an email and, when it matches an account,
// mails a single-use reset token. The response is the same 202 either way so
// the endpoint cannot be used to probe which emails are registered.
func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.resets == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := identity.NormalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if d, ok := h.allow(ctx, "auth.password.forgot", "ip:"+ipKey(ip)); !ok {
		writeRateLimited(w, d.RetryAfter)
		return
	}
	if d, ok := h.allow(ctx, "auth.password.forgot", "email:"+email); !ok {
		writeRateLimited(w, d.RetryAfter)
		return
	}

	if err := h.enforceCaptcha(ctx, req.Captcha, ip); err != nil {
		switch {
		case errors.Is(err, ErrCaptchaRequired), errors.Is(err, ErrCaptchaInvalid):
			writeError(w, http.StatusForbidden, "captcha_invalid", "captcha verification failed")
		default:
			h.log.Error("auth.password.forgot.captcha.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		}
		return
	}

	userAuth, err := h.users.GetUserAuthByEmail(ctx, email)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.password.forgot.lookup.fail", "err", err)
		}
		h.audit(ctx, audit.Event{
			Action: "auth.password.forgot", ActorEmail: email,
			Outcome: audit.OutcomeFailure, Detail: "not_found",
			Metadata: requestMeta(ip, ua),
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}
	user := userAuth.User

	_, plain, err := h.resets.Issue(ctx, now, user.ID)
	if err != nil {
		h.log.Error("auth.password.forgot.issue.fail", "err", err, "user_id", user.ID)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	if err := h.emailSender.SendPasswordReset(ctx, PasswordResetMessage{
		UserID: user.ID,
		Email:  user.Email,
		Token:  plain,
	}); err != nil {
		h.log.Error("auth.password.forgot.email.fail", "err", err, "user_id", user.ID)
	}

	h.audit(ctx, audit.Event{
		Action: "auth.password.forgot", ActorID: user.ID, ActorEmail: user.EmailNorm,
		Outcome: audit.OutcomeSuccess, Metadata: requestMeta(ip, ua),
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleResetPassword redeems a reset token, replaces the credential, and
// revokes every session the account holds. A token spends exactly once; a
// replay gets the same generic 401 as an unknown token.
func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.resets == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token and new_password are required")
		return
	}
	// Validate the password before redeeming so a weak choice does not burn
	// the single-use token.
	if err := h.pw.Validate(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if d, ok := h.allow(ctx, "auth.password.reset", "ip:"+ipKey(ip)); !ok {
		writeRateLimited(w, d.RetryAfter)
		return
	}

	row, err := h.resets.Redeem(ctx, now, req.Token)
	if err != nil {
		detail := "token_invalid"
		switch {
		case errors.Is(err, reset.ErrNotFound):
			detail = "token_not_found"
		case errors.Is(err, reset.ErrNotActive):
			detail = "token_not_active"
		default:
			h.log.Error("auth.password.reset.redeem.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		metricPasswordResets.WithLabelValues("failure").Inc()
		h.audit(ctx, audit.Event{
			Action:  "auth.password.reset",
			Outcome: audit.OutcomeFailure, Detail: detail,
			Metadata: requestMeta(ip, ua),
		})
		writeError(w, http.StatusUnauthorized, "invalid_token", "reset token is invalid or expired")
		return
	}

	if err := h.users.SetPassword(ctx, row.UserID, req.NewPassword); err != nil {
		switch {
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case identity.IsNotFound(err):
			writeError(w, http.StatusUnauthorized, "invalid_token", "reset token is invalid or expired")
		default:
			h.log.Error("auth.password.reset.set.fail", "err", err, "user_id", row.UserID)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	// Cut off anyone holding a session stolen alongside the old password.
	if err := h.sessions.RevokeAllForUser(ctx, now, row.UserID); err != nil {
		h.log.Error("auth.password.reset.revoke_all.fail", "err", err, "user_id", row.UserID)
	}

	metricPasswordResets.WithLabelValues("success").Inc()
	h.audit(ctx, audit.Event{
		Action: "auth.password.reset", ActorID: row.UserID,
		Outcome: audit.OutcomeSuccess, Metadata: requestMeta(ip, ua),
	})

	w.WriteHeader(http.StatusNoContent)
}
