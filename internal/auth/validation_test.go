package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/unlinked/internal/model"
)

func newTestValidator(t *testing.T) *InputValidator {
	t.Helper()
	v, err := NewInputValidator()
	if err != nil {
		t.Fatalf("NewInputValidator failed: %v", err)
	}
	return v
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
	return apiErr.Message
}

func TestInputValidator_Signup_Valid(t *testing.T) {
	v := newTestValidator(t)

	for _, role := range []model.Role{"", model.RolePending, model.RoleConsultant, model.RoleBenchSales} {
		err := v.Validate(SignupInput{Email: "a@x.com", Password: "Str0ng!pass", Role: role})
		if err != nil {
			t.Errorf("role %q: unexpected error %v", role, err)
		}
	}
}

// 最初に違反したルールの文言が返ること
func TestInputValidator_Signup_FirstFailingRule(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name  string
		input SignupInput
		want  string
	}{
		{"missing email", SignupInput{Password: "Str0ng!pass"}, "Email is required"},
		{"bad email", SignupInput{Email: "not-an-email", Password: "Str0ng!pass"}, "Invalid email address"},
		{"email checked before password", SignupInput{Email: "bad", Password: "x"}, "Invalid email address"},
		{"missing password", SignupInput{Email: "a@x.com"}, "Password is required"},
		{"too short", SignupInput{Email: "a@x.com", Password: "Aa1!"}, "Password must be between 8 and 32 characters"},
		{"too long", SignupInput{Email: "a@x.com", Password: "Aa1!" + strings.Repeat("a", 29)}, "Password must be between 8 and 32 characters"},
		{"over bcrypt byte limit", SignupInput{Email: "a@x.com", Password: "Aa1!" + strings.Repeat("€", 24)}, "Password must be at most 72 bytes"},
		{"no lowercase", SignupInput{Email: "a@x.com", Password: "STR0NG!PASS"}, "Password must contain at least one lowercase letter"},
		{"no uppercase", SignupInput{Email: "a@x.com", Password: "str0ng!pass"}, "Password must contain at least one uppercase letter"},
		{"no digit", SignupInput{Email: "a@x.com", Password: "Strong!pass"}, "Password must contain at least one number"},
		{"no symbol", SignupInput{Email: "a@x.com", Password: "Str0ngpass"}, "Password must contain at least one special character"},
		{"unknown role", SignupInput{Email: "a@x.com", Password: "Str0ng!pass", Role: "ADMIN"}, "Role must be one of PENDING, CONSULTANT, BENCH_SALES"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.input)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if got := validationMessage(t, err); got != tc.want {
				t.Errorf("message = %q, want %q", got, tc.want)
			}
		})
	}
}

// ちょうど8文字と32文字は許可されること
func TestInputValidator_Signup_LengthBoundaries(t *testing.T) {
	v := newTestValidator(t)

	eight := "Aa1!aaaa"
	thirtyTwo := "Aa1!" + strings.Repeat("a", 28)
	for _, pw := range []string{eight, thirtyTwo} {
		if err := v.Validate(SignupInput{Email: "a@x.com", Password: pw}); err != nil {
			t.Errorf("password of length %d: unexpected error %v", len(pw), err)
		}
	}
}

// 32文字以内でもbcryptの72バイト上限を超える入力はバイト数違反になること
func TestInputValidator_Signup_MultibyteOverBcryptLimit(t *testing.T) {
	v := newTestValidator(t)

	pw := "Aa1!" + strings.Repeat("😀", 20)
	err := v.Validate(SignupInput{Email: "a@x.com", Password: pw})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if got := validationMessage(t, err); got != "Password must be at most 72 bytes" {
		t.Errorf("message = %q, want byte limit message", got)
	}
}

func TestInputValidator_Login(t *testing.T) {
	v := newTestValidator(t)

	if err := v.Validate(LoginInput{Email: "a@x.com", Password: "anything"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := v.Validate(LoginInput{Email: "a@x.com"})
	if got := validationMessage(t, err); got != "Password is required" {
		t.Errorf("message = %q, want %q", got, "Password is required")
	}
}
