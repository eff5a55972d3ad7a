package models

import (
	"strings"
	"testing"
)

func TestRoles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		user  *User
		admin bool
		name  string
	}{
		{&User{Role: RoleAdministrator}, true, "administrator"},
		{&User{Role: RoleStandard}, false, "user"},
		{&User{Role: Role(9)}, false, "unknown"},
		{nil, false, ""},
	}
	for _, tt := range tests {
		if got := tt.user.IsAdmin(); got != tt.admin {
			t.Errorf("IsAdmin(%+v) = %v, want %v", tt.user, got, tt.admin)
		}
		if tt.user != nil && tt.user.Role.String() != tt.name {
			t.Errorf("Role(%d).String() = %q, want %q", tt.user.Role, tt.user.Role.String(), tt.name)
		}
	}
}

func TestListedUsersKeepRoles(t *testing.T) {
	t.Parallel()
	store := NewUserStore(openTestDB(t))

	if _, err := store.Create("root", "pw", RoleAdministrator); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create("bob", "pw", RoleStandard); err != nil {
		t.Fatal(err)
	}

	users, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	var admins []string
	for _, u := range users {
		if !u.Active {
			t.Errorf("%s should be active", u.Username)
		}
		if u.IsAdmin() {
			admins = append(admins, u.Username)
		}
		if u.Password == "pw" || !VerifyPassword("pw", u.Password) {
			t.Errorf("%s password hash = %q", u.Username, u.Password)
		}
	}
	if len(admins) != 1 || admins[0] != "root" {
		t.Errorf("admins = %v, want [root]", admins)
	}
}

func TestTokenStopsMatchingAfterPasswordChange(t *testing.T) {
	t.Parallel()

	user := &User{ID: 1, Username: "admin", Password: "$2a$10$first"}
	const secret = "test-jwt-secret-key"

	token, err := CreateJWT(user, secret)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := VerifyJWT(token, secret)
	if err != nil {
		t.Fatal(err)
	}
	if !claims.Matches(user) {
		t.Fatal("fresh token should match its user")
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		t.Errorf("token expiry = %v", claims.ExpiresAt)
	}

	changed := *user
	changed.Password = "$2a$10$second"
	if claims.Matches(&changed) {
		t.Error("token should not match after the password changes")
	}
	renamed := *user
	renamed.Username = "other"
	if claims.Matches(&renamed) {
		t.Error("token should not match another user")
	}
	if claims.Matches(nil) {
		t.Error("token should not match a deleted user")
	}
}

func TestVerifyJWTRejectsForeignTokens(t *testing.T) {
	t.Parallel()

	user := &User{ID: 1, Username: "admin", Password: "$2a$10$hash"}
	token, err := CreateJWT(user, "correct-secret")
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct{ name, token, secret string }{
		{"wrong secret", token, "wrong-secret"},
		{"garbage", "not.a.token", "correct-secret"},
		{"truncated", token[:len(token)-4], "correct-secret"},
	} {
		if _, err := VerifyJWT(tc.token, tc.secret); err == nil {
			t.Errorf("%s: expected verification to fail", tc.name)
		}
	}
}

func TestPasswordFingerprint(t *testing.T) {
	t.Parallel()

	if got := Shake256Hex("", shake256Length); got != "" {
		t.Errorf("empty password fingerprint = %q", got)
	}
	a := Shake256Hex("hash-a", shake256Length)
	if len(a) != 2*shake256Length || a != Shake256Hex("hash-a", shake256Length) {
		t.Errorf("fingerprint %q not stable or wrong length", a)
	}
	if a == Shake256Hex("hash-b", shake256Length) {
		t.Error("different hashes share a fingerprint")
	}
}

func TestGenSecret(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, length := range []int{16, 64, 256} {
		secret, err := GenSecret(length)
		if err != nil {
			t.Fatal(err)
		}
		if len(secret) != length {
			t.Errorf("GenSecret(%d) produced len=%d", length, len(secret))
		}
		if i := strings.IndexFunc(secret, func(r rune) bool { return !strings.ContainsRune(secretAlphabet, r) }); i >= 0 {
			t.Errorf("character %q not in alphabet", secret[i])
		}
		if seen[secret] {
			t.Error("GenSecret repeated a value")
		}
		seen[secret] = true
	}
}
