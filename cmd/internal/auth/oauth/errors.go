package oauth

import "errors"

var (
	// ErrUnknownProvider is returned for a provider outside the closed set.
	ErrUnknownProvider = errors.New("unknown oauth provider")

	// ErrInvalidState is returned when a callback's state is missing, expired,
	// already used, or simply unknown. The cases are deliberately not
	// distinguished for the client.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrExchangeFailed is returned when the provider's token or userinfo
	// endpoint misbehaves (non-2xx, malformed payload). Maps to 502.
	ErrExchangeFailed = errors.New("oauth exchange failed")

	// ErrConfig is returned for invalid oauth configuration.
	ErrConfig = errors.New("invalid oauth config")
)
