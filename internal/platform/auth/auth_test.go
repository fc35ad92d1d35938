package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHS256SignVerify(t *testing.T) {
	ts, err := NewHS256Service("secret", "imgopt", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, exp, err := ts.Sign("admin", RoleAdmin)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if d := time.Until(exp); d <= 59*time.Minute || d > time.Hour {
		t.Fatalf("expiry out of range: %v", d)
	}
	id, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.Subject != "admin" || id.Role != RoleAdmin {
		t.Fatalf("identity: %+v", id)
	}
}

func TestHS256RejectsForeignAndExpired(t *testing.T) {
	ts, _ := NewHS256Service("secret", "imgopt", time.Hour)
	other, _ := NewHS256Service("other-secret", "imgopt", time.Hour)
	otherIssuer, _ := NewHS256Service("secret", "someone-else", time.Hour)

	for name, svc := range map[string]TokenService{"secret": other, "issuer": otherIssuer} {
		token, _, err := svc.Sign("admin", RoleAdmin)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ts.Verify(token); err == nil {
			t.Errorf("%s: expected verify error", name)
		}
	}

	expired := &hs256Service{secret: []byte("secret"), issuer: "imgopt", ttl: time.Minute,
		now: func() time.Time { return time.Now().Add(-time.Hour) }}
	token, _, _ := expired.Sign("admin", RoleAdmin)
	if _, err := ts.Verify(token); err == nil {
		t.Error("expired token should not verify")
	}
}

func TestNewHS256ServiceValidates(t *testing.T) {
	if _, err := NewHS256Service("", "i", time.Hour); err == nil {
		t.Error("empty secret")
	}
	if _, err := NewHS256Service("s", "", time.Hour); err == nil {
		t.Error("empty issuer")
	}
	if _, err := NewHS256Service("s", "i", 0); err == nil {
		t.Error("zero ttl")
	}
}

func TestCheckCredentials(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckCredentials("admin", hash, "admin", "hunter2"); err != nil {
		t.Fatalf("valid: %v", err)
	}
	cases := []struct{ hash, user, pass string }{
		{hash, "admin", "wrong"},
		{hash, "root", "hunter2"},
		{"", "admin", "hunter2"},
	}
	for _, tc := range cases {
		if err := CheckCredentials("admin", tc.hash, tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("CheckCredentials(%q,%q) = %v, want ErrInvalidCredentials", tc.user, tc.pass, err)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := GetIdentity(context.Background()); ok {
		t.Fatal("empty context should have no identity")
	}
	ctx := WithIdentity(context.Background(), Identity{Subject: "admin", Role: RoleAdmin})
	if id, ok := GetIdentity(ctx); !ok || id.Subject != "admin" {
		t.Fatalf("got %+v, %v", id, ok)
	}
}
