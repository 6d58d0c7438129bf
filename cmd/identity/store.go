package identity

import (
	"context"
	"time"
)

// User is Bazaar's canonical security principal.
type User struct {
	ID        string
	Email     string
	EmailNorm string
	Name      string
	CreatedAt time.Time
}

// UserAuth couples a user with its stored credential for login verification.
// PasswordHash is empty for accounts created through a third-party provider
// that never set a password.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration request. Password is the plain
// secret; it is hashed inside the store and never persisted as given.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Now      time.Time
}

// OAuthIdentity names one provider-asserted identity.
type OAuthIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// Store is the user account persistence boundary.
type Store interface {
	// CreateUser registers a user. Duplicate email yields a ConflictError
	// with Field "email".
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserByID loads a user. IsNotFound(err) for missing rows.
	GetUserByID(ctx context.Context, id string) (User, error)

	// GetUserAuthByEmail loads a user plus credential by normalized email.
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	// FindOrCreateOAuthUser resolves a provider identity to a user, linking
	// by verified email or creating a fresh password-less account.
	FindOrCreateOAuthUser(ctx context.Context, id OAuthIdentity, now time.Time) (User, error)

	// SetPassword replaces the user's credential. The plain password is
	// validated and hashed inside the store. IsNotFound(err) for missing
	// users.
	SetPassword(ctx context.Context, userID, newPassword string) error
}
