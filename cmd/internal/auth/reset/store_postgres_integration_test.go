package reset

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when BAZAAR_DATABASE_URL is set.

func integrationPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
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
	return pool
}

func createIntegrationUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	id := ulid.Make().String()
	_, err := pool.Exec(ctx, `
		INSERT INTO bazaar.users (id, email, name, password_hash, created_at)
		VALUES ($1, $2, 'integration', 'x', now())
	`, id, id+"@test.invalid")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM bazaar.password_resets WHERE user_id = $1`, id)
		_, _ = pool.Exec(ctx, `DELETE FROM bazaar.users WHERE id = $1`, id)
	})
	return id
}

func TestPostgresStore_IssueRedeemOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := integrationPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	userID := createIntegrationUser(ctx, t, pool)
	now := time.Now().UTC()

	_, plain, err := svc.Issue(ctx, now, userID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	redeemed, err := svc.Redeem(ctx, now.Add(time.Minute), plain)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if redeemed.UserID != userID || redeemed.ConsumedAt == nil {
		t.Fatalf("Redeem row = %+v", redeemed)
	}

	if _, err := svc.Redeem(ctx, now.Add(2*time.Minute), plain); !errors.Is(err, ErrNotActive) {
		t.Fatalf("replay err = %v, want ErrNotActive", err)
	}
}

func TestPostgresStore_ExpiredToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := integrationPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	svc, err := NewService(store, WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	userID := createIntegrationUser(ctx, t, pool)
	now := time.Now().UTC()

	_, plain, err := svc.Issue(ctx, now, userID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.Redeem(ctx, now.Add(2*time.Minute), plain); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expired err = %v, want ErrNotActive", err)
	}
}
