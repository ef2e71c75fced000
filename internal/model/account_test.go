package model

import "testing"

func TestRole_Valid(t *testing.T) {
	for _, r := range Roles() {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("ADMIN").Valid() {
		t.Error("ADMIN should not be valid")
	}
	if Role("").Valid() {
		t.Error("empty role should not be valid")
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"A@X.COM":           "a@x.com",
		"  user@Example.org": "user@example.org",
		"plain@x.com":       "plain@x.com",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAccount_HasPassword(t *testing.T) {
	hash := "$2a$04$abcdefghijklmnopqrstuv"
	empty := ""

	cases := []struct {
		name    string
		account Account
		want    bool
	}{
		{"email with hash", Account{AuthType: AuthTypeEmail, PasswordHash: &hash}, true},
		{"email without hash", Account{AuthType: AuthTypeEmail}, false},
		{"email with empty hash", Account{AuthType: AuthTypeEmail, PasswordHash: &empty}, false},
		{"oauth with hash", Account{AuthType: AuthTypeOAuth, PasswordHash: &hash}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.account.HasPassword(); got != tc.want {
				t.Errorf("HasPassword() = %v, want %v", got, tc.want)
			}
		})
	}
}
