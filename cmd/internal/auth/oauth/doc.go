// Package oauth implements Bazaar's third-party login exchange.
//
// The flow is authorization-code with PKCE (S256) against a closed set of
// providers. Each started exchange persists a one-time request row holding
// the state and code verifier; the callback consumes the row atomically
// before talking to the provider, so a state value can never be redeemed
// twice, not even by a crashed or retried exchange.
//
// Session bootstrap after a successful callback belongs to the API layer and
// mirrors password login exactly.
package oauth
