package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevokerExpiresEntries(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected jti-1 to be revoked")
	}
	revoked, err = r.IsRevoked("jti-unknown")
	if err != nil {
		t.Fatalf("is revoked unknown: %v", err)
	}
	if revoked {
		t.Fatalf("unknown jti must not be revoked")
	}

	if err := r.Revoke("jti-short", time.Millisecond); err != nil {
		t.Fatalf("revoke short: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	revoked, err = r.IsRevoked("jti-short")
	if err != nil {
		t.Fatalf("is revoked short: %v", err)
	}
	if revoked {
		t.Fatalf("expected expired revocation to clear")
	}
}

func TestMemoryTokenRevokerIgnoresNonPositiveTTL(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-zero", 0); err != nil {
		t.Fatalf("revoke zero ttl: %v", err)
	}
	revoked, err := r.IsRevoked("jti-zero")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatalf("zero ttl revocation should be a no-op")
	}
}

func TestRedisTokenRevokerRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	r := NewRedisTokenRevoker(redis.Addr(), "")

	if err := r.Revoke("jti-redis", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-redis")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected jti-redis to be revoked")
	}

	redis.FastForward(2 * time.Minute)
	revoked, err = r.IsRevoked("jti-redis")
	if err != nil {
		t.Fatalf("is revoked after ttl: %v", err)
	}
	if revoked {
		t.Fatalf("expected revocation to expire with ttl")
	}
}
