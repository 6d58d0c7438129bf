// Package reset issues and redeems single-use password reset tokens.
//
// A token is an opaque random string handed to the account owner out of band
// (email). Only its digest is persisted. Redemption is a compare-and-set on
// the stored row, so a token can be spent exactly once even under concurrent
// submission.
package reset
