package security

import (
	"strings"
	"testing"
)

func TestEmailSanitizer_KeepsAllowedMarkup(t *testing.T) {
	s := NewEmailSanitizer()
	in := `<h1>Welcome</h1><p>Hello <strong>there</strong></p><a href="https://app.example.com/profile/1">Profile</a>`

	out := s.SanitizeHTML(in)

	for _, want := range []string{"<h1>Welcome</h1>", "<strong>there</strong>", `href="https://app.example.com/profile/1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q should contain %q", out, want)
		}
	}
}

func TestEmailSanitizer_RemovesDangerousMarkup(t *testing.T) {
	s := NewEmailSanitizer()
	cases := []struct {
		name      string
		input     string
		forbidden string
	}{
		{"script", `<p>hi</p><script>alert(1)</script>`, "<script"},
		{"event handler", `<p onclick="steal()">hi</p>`, "onclick"},
		{"javascript url", `<a href="javascript:alert(1)">x</a>`, "javascript:"},
		{"iframe", `<iframe src="https://evil.example"></iframe>`, "<iframe"},
		{"style", `<style>body{}</style>`, "<style"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := s.SanitizeHTML(tc.input)
			if strings.Contains(out, tc.forbidden) {
				t.Errorf("output %q should not contain %q", out, tc.forbidden)
			}
		})
	}
}

// メールアドレスに埋め込まれたタグは除去されること
func TestEmailSanitizer_StripTags(t *testing.T) {
	s := NewEmailSanitizer()
	got := s.StripTags(`<img src=x onerror=alert(1)>user@example.com`)
	if strings.Contains(got, "<") {
		t.Errorf("StripTags = %q, should not contain markup", got)
	}
	if !strings.Contains(got, "user@example.com") {
		t.Errorf("StripTags = %q, should keep text", got)
	}
}

func TestEmailSanitizer_Idempotent(t *testing.T) {
	s := NewEmailSanitizer()
	in := `<p>Welcome <a href="https://x.example/p">here</a></p>`
	once := s.SanitizeHTML(in)
	if twice := s.SanitizeHTML(once); twice != once {
		t.Errorf("not idempotent: %q != %q", twice, once)
	}
}
