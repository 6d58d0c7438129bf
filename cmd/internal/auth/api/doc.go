// Package authapi exposes Bazaar's authentication endpoints over HTTP.
//
// It wires the identity store, session service, token verifier, and OAuth
// exchange into JSON handlers: register, login, refresh, logout, logout_all,
// me, the provider start/callback pair, and the password forgot/reset pair.
// Browser clients get the session
// through cookies (HttpOnly access + refresh, a readable CSRF cookie); native
// clients get tokens in the response body and authenticate with a bearer
// header.
package authapi
