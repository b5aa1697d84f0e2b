package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"almanac/internal/auth"
)

func testStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestSaveLookupRevokeCycle(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	hash := auth.HashToken("refresh-token-1")
	if err := store.SaveRefreshSession(ctx, hash, "user_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}

	user, err := store.LookupRefreshSession(ctx, hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user.ID != "user_1" {
		t.Fatalf("user id = %q", user.ID)
	}

	if err := store.RevokeRefreshSession(ctx, hash); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, hash); err == nil {
		t.Fatal("revoked token still resolves")
	}
}

func TestLookupHonorsExpiry(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	hash := auth.HashToken("short-lived")
	if err := store.SaveRefreshSession(ctx, hash, "user_1", time.Now().Add(50*time.Millisecond)); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(time.Second)

	if _, err := store.LookupRefreshSession(ctx, hash); err == nil {
		t.Fatal("expired token still resolves")
	}
}

func TestLookupUnknownTokenFails(t *testing.T) {
	store, _ := testStore(t)
	if _, err := store.LookupRefreshSession(context.Background(), auth.HashToken("never-issued")); err == nil {
		t.Fatal("unknown token resolved")
	}
}

func TestRevokeUnknownTokenIsQuiet(t *testing.T) {
	store, _ := testStore(t)
	if err := store.RevokeRefreshSession(context.Background(), auth.HashToken("never-issued")); err != nil {
		t.Fatalf("revoke unknown: %v", err)
	}
}

func TestTokensAreIndependent(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	hashA := auth.HashToken("token-a")
	hashB := auth.HashToken("token-b")
	if err := store.SaveRefreshSession(ctx, hashA, "user_a", expires); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRefreshSession(ctx, hashB, "user_b", expires); err != nil {
		t.Fatal(err)
	}

	// Rotation revokes one token without disturbing the other.
	if err := store.RevokeRefreshSession(ctx, hashA); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LookupRefreshSession(ctx, hashA); err == nil {
		t.Fatal("revoked token-a still resolves")
	}
	user, err := store.LookupRefreshSession(ctx, hashB)
	if err != nil {
		t.Fatalf("token-b lookup: %v", err)
	}
	if user.ID != "user_b" {
		t.Fatalf("user id = %q", user.ID)
	}
}
