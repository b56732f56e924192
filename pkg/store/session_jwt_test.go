package store

import (
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTSessionRoundTrip(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("resolve token: ok=%v err=%v", ok, err)
	}
	if uid != "user-1" {
		t.Fatalf("unexpected user id %q", uid)
	}
}

func TestJWTSessionExpiry(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("expired token accepted")
	}
}

func TestJWTSessionRejectsGarbage(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken("not.a.token"); ok {
		t.Fatalf("garbage token accepted")
	}
}

func TestJWTSessionRejectsForeignSignature(t *testing.T) {
	a, _ := NewJWTSessionStore(testSecret, time.Hour)
	b, _ := NewJWTSessionStore("ffffffffffffffffffffffffffffffff", time.Hour)
	token, err := a.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := b.GetUserIDByToken(token); ok {
		t.Fatalf("token signed with another secret accepted")
	}
}

func TestJWTSessionSecretTooShort(t *testing.T) {
	if _, err := NewJWTSessionStore("short", time.Hour); err == nil {
		t.Fatalf("expected error for short secret")
	}
}
