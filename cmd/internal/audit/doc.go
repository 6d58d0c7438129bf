// Package audit implements Bazaar's append-only security audit trail.
//
// Events are masked before persistence so that secrets (passwords, tokens,
// card numbers) never reach storage, and recording is best-effort: a failing
// sink is logged to the fallback logger and never propagates to the caller's
// primary control flow.
package audit
