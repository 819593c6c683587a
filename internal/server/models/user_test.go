package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRoleValid(t *testing.T) {
	if !RoleUser.Valid() || !RoleAdmin.Valid() {
		t.Fatalf("known roles must be valid")
	}
	if Role("root").Valid() {
		t.Fatalf("unknown role must be invalid")
	}
}

func TestPublic_OmitsSecrets(t *testing.T) {
	hash := "hashhash"
	u := &User{
		ID:             "u-1",
		Name:           "Alice",
		Email:          "alice@example.com",
		PasswordHash:   []byte("bcrypt-output"),
		ResetTokenHash: &hash,
		Role:           RoleUser,
	}

	b, err := json.Marshal(u.Public())
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	out := string(b)
	if strings.Contains(out, "bcrypt-output") || strings.Contains(out, "hashhash") {
		t.Fatalf("secret fields leaked: %s", out)
	}
	if !strings.Contains(out, `"email":"alice@example.com"`) || !strings.Contains(out, `"role":"user"`) {
		t.Fatalf("unexpected projection: %s", out)
	}
}

func TestPasswordChangedAfter(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	u := &User{}
	if u.PasswordChangedAfter(base) {
		t.Fatalf("never-changed password must not be stale")
	}

	changed := base.Add(time.Minute)
	u.PasswordChangedAt = &changed

	if !u.PasswordChangedAfter(base) {
		t.Fatalf("token issued before change must be stale")
	}
	if u.PasswordChangedAfter(changed) {
		t.Fatalf("change at exactly issued-at is not after it")
	}
	if u.PasswordChangedAfter(changed.Add(time.Second)) {
		t.Fatalf("token issued after change must not be stale")
	}
}
