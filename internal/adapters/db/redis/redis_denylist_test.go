package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
)

func newDenylist(t *testing.T) (*AccessDenylist, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	t.Cleanup(mr.Close)

	client := redisv9.NewClient(&redisv9.Options{
		Addr: mr.Addr(),
	})
	return NewAccessDenylist(client), mr
}

func TestAccessDenylist_RevokeAndCheck(t *testing.T) {
	dl, _ := newDenylist(t)
	ctx := context.Background()

	revoked, err := dl.IsAccessRevoked(ctx, "jti1")
	if err != nil {
		t.Fatalf("IsAccessRevoked err: %v", err)
	}
	if revoked {
		t.Fatal("unknown token must not be revoked")
	}

	if err := dl.RevokeAccess(ctx, "jti1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}
	revoked, err = dl.IsAccessRevoked(ctx, "jti1")
	if err != nil {
		t.Fatalf("IsAccessRevoked err: %v", err)
	}
	if !revoked {
		t.Fatal("token should be revoked")
	}
}

func TestAccessDenylist_EntryExpires(t *testing.T) {
	dl, mr := newDenylist(t)
	ctx := context.Background()

	if err := dl.RevokeAccess(ctx, "jti2", time.Now().Add(30*time.Second)); err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}
	if ttl := mr.TTL(accessPrefix + "jti2"); ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(31 * time.Second)
	revoked, err := dl.IsAccessRevoked(ctx, "jti2")
	if err != nil {
		t.Fatalf("IsAccessRevoked err: %v", err)
	}
	if revoked {
		t.Fatal("entry should be gone after expiry")
	}
}

func TestAccessDenylist_PastExpiryUsesFloor(t *testing.T) {
	dl, mr := newDenylist(t)
	if err := dl.RevokeAccess(context.Background(), "old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}
	if ttl := mr.TTL(accessPrefix + "old"); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}
}

func TestAccessDenylist_ConnectionErrorFailsClosed(t *testing.T) {
	client := redisv9.NewClient(&redisv9.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	dl := NewAccessDenylist(client)

	revoked, err := dl.IsAccessRevoked(context.Background(), "jti")
	if err == nil {
		t.Fatal("expected error")
	}
	if !revoked {
		t.Fatal("errors must report revoked")
	}
}
