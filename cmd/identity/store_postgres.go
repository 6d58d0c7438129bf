package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"bazaar/cmd/security/password"
)

// PostgresStore implements user account persistence over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must not close it.
// Schema/table identifiers are safely quoted to avoid SQL injection via
// identifiers, and errors are mapped to identity sentinel kinds.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	pw     password.Config
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "bazaar").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithPasswordConfig overrides the Argon2id parameters used for new accounts.
func WithPasswordConfig(cfg password.Config) PostgresOption {
	return func(s *PostgresStore) error {
		s.pw = cfg
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "bazaar",
		pw:     password.DefaultConfig(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const maxEmailLen = 320

// CreateUser registers a user with an Argon2id credential.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" || len(email) > maxEmailLen || !strings.Contains(email, "@") {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid email"}
	}
	name := NormalizeName(in.Name)
	if name == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "name is required"}
	}
	if err := s.pw.Validate(in.Password); err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := s.pw.Hash(in.Password)
	if err != nil {
		return User{}, err
	}

	emailNorm := NormalizeEmail(email)
	userID := ulid.Make().String()
	users := pgIdent(s.schema, "users")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (id, email, email_norm, name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, email, emailNorm, name, hash, now,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, err
	}

	return User{ID: userID, Email: email, EmailNorm: emailNorm, Name: name, CreatedAt: now}, nil
}

// GetUserByID loads a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	users := pgIdent(s.schema, "users")
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, email_norm, name, created_at
		   FROM `+users+`
		  WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserAuthByEmail loads a user plus credential by normalized email.
func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	users := pgIdent(s.schema, "users")
	var (
		ua   UserAuth
		hash *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, email_norm, name, password_hash, created_at
		   FROM `+users+`
		  WHERE email_norm = $1`,
		NormalizeEmail(email),
	).Scan(&ua.User.ID, &ua.User.Email, &ua.User.EmailNorm, &ua.User.Name, &hash, &ua.User.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return UserAuth{}, err
	}
	if hash != nil {
		ua.PasswordHash = *hash
	}
	return ua, nil
}

// FindOrCreateOAuthUser resolves a provider identity to a local account.
//
// Resolution order: an existing (provider, subject) link wins; otherwise a
// user with the same normalized email is linked; otherwise a password-less
// account is created. The whole resolution runs in one transaction so a
// concurrent callback for the same identity cannot create two accounts.
func (s *PostgresStore) FindOrCreateOAuthUser(ctx context.Context, id OAuthIdentity, now time.Time) (User, error) {
	const op = "identity.FindOrCreateOAuthUser"

	if id.Provider == "" || id.Subject == "" || strings.TrimSpace(id.Email) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "incomplete identity"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	identities := pgIdent(s.schema, "user_identities")

	var u User
	err = tx.QueryRow(ctx,
		`SELECT u.id, u.email, u.email_norm, u.name, u.created_at
		   FROM `+identities+` i
		   JOIN `+users+` u ON u.id = i.user_id
		  WHERE i.provider = $1 AND i.subject = $2`,
		id.Provider, id.Subject,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.Name, &u.CreatedAt)
	if err == nil {
		return u, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return User{}, err
	}

	emailNorm := NormalizeEmail(id.Email)
	err = tx.QueryRow(ctx,
		`SELECT id, email, email_norm, name, created_at
		   FROM `+users+`
		  WHERE email_norm = $1`,
		emailNorm,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		name := NormalizeName(id.Name)
		if name == "" {
			name = emailNorm
		}
		u = User{
			ID:        ulid.Make().String(),
			Email:     strings.TrimSpace(id.Email),
			EmailNorm: emailNorm,
			Name:      name,
			CreatedAt: now,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO `+users+` (id, email, email_norm, name, password_hash, created_at)
			 VALUES ($1, $2, $3, $4, NULL, $5)`,
			u.ID, u.Email, u.EmailNorm, u.Name, now,
		)
		if err != nil {
			if pgIsUniqueViolation(err) {
				// Lost a race with a concurrent registration for this email.
				return User{}, ConflictError{Op: op, Field: "email"}
			}
			return User{}, err
		}
	} else if err != nil {
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+identities+` (provider, subject, user_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		id.Provider, id.Subject, u.ID, now,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "identity"}
		}
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

// SetPassword replaces the user's stored credential.
func (s *PostgresStore) SetPassword(ctx context.Context, userID, newPassword string) error {
	const op = "identity.SetPassword"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "user id is required"}
	}
	if err := s.pw.Validate(newPassword); err != nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	hash, err := s.pw.Hash(newPassword)
	if err != nil {
		return err
	}

	users := pgIdent(s.schema, "users")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET password_hash = $2 WHERE id = $1`,
		userID, hash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// ---- helpers ----

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
