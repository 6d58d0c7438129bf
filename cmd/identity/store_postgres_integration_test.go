package identity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when BAZAAR_DATABASE_URL is set.

func integrationStore(ctx context.Context, t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()
	dbURL := os.Getenv("BAZAAR_DATABASE_URL")
	if dbURL == "" {
		t.Skip("BAZAAR_DATABASE_URL is not set; skipping Postgres integration test")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("postgres unreachable: %v", err)
	}
	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return store, pool
}

func TestPostgres_CreateUserAndDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, pool := integrationStore(ctx, t)
	defer pool.Close()

	now := time.Now().UTC()
	email := "it-" + now.Format("20060102150405.000000000") + "@test.invalid"
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM bazaar.users WHERE email_norm = $1`, NormalizeEmail(email))
	})

	u, err := store.CreateUser(ctx, CreateUserInput{
		Email:    email,
		Name:     "Integration Shopper",
		Password: "correct horse battery staple",
		Now:      now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Same address, different case: still a conflict.
	_, err = store.CreateUser(ctx, CreateUserInput{
		Email:    "IT-" + now.Format("20060102150405.000000000") + "@TEST.INVALID",
		Name:     "Impostor",
		Password: "another long password",
		Now:      now,
	})
	if !IsConflict(err) {
		t.Fatalf("want conflict for duplicate email, got %v", err)
	}

	ua, err := store.GetUserAuthByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetUserAuthByEmail: %v", err)
	}
	if ua.User.ID != u.ID || ua.PasswordHash == "" {
		t.Fatalf("unexpected auth row: %+v", ua)
	}
}

func TestPostgres_FindOrCreateOAuthUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, pool := integrationStore(ctx, t)
	defer pool.Close()

	now := time.Now().UTC()
	email := "oauth-" + now.Format("20060102150405.000000000") + "@test.invalid"
	id := OAuthIdentity{Provider: "google", Subject: "sub-" + email, Email: email, Name: "OAuth Shopper"}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM bazaar.user_identities WHERE subject = $1`, id.Subject)
		_, _ = pool.Exec(ctx, `DELETE FROM bazaar.users WHERE email_norm = $1`, NormalizeEmail(email))
	})

	first, err := store.FindOrCreateOAuthUser(ctx, id, now)
	if err != nil {
		t.Fatalf("FindOrCreateOAuthUser (create): %v", err)
	}
	second, err := store.FindOrCreateOAuthUser(ctx, id, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("FindOrCreateOAuthUser (find): %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same identity resolved to two users: %s vs %s", first.ID, second.ID)
	}

	ua, err := store.GetUserAuthByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetUserAuthByEmail: %v", err)
	}
	if ua.PasswordHash != "" {
		t.Fatal("oauth-created account must have no password hash")
	}
}
