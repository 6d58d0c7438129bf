package oauth

// Provider identifies one of the supported login providers.
// The set is closed; there is no runtime registration.
type Provider string

const (
	// ProviderGoogle is Google OpenID Connect.
	ProviderGoogle Provider = "google"
	// ProviderGitHub is GitHub OAuth.
	ProviderGitHub Provider = "github"
)

// Endpoints holds the provider URLs one exchange talks to.
// Tests point these at httptest servers.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	UserinfoURL  string
	Scopes       string
}

func defaultEndpoints() map[Provider]Endpoints {
	return map[Provider]Endpoints{
		ProviderGoogle: {
			AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			UserinfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
			Scopes:       "openid email profile",
		},
		ProviderGitHub: {
			AuthorizeURL: "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			UserinfoURL:  "https://api.github.com/user",
			Scopes:       "read:user user:email",
		},
	}
}

// ParseProvider maps a path segment to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGoogle:
		return ProviderGoogle, nil
	case ProviderGitHub:
		return ProviderGitHub, nil
	default:
		return "", ErrUnknownProvider
	}
}

// Identity is the provider-asserted identity a successful callback yields.
type Identity struct {
	Provider Provider
	Subject  string
	Email    string
	Name     string
}
