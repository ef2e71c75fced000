package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// EmailSanitizer は送信メールのHTML本文をサニタイズする。
// 本文に埋め込む値（メールアドレス等）は利用者が入力したものであるため、
// 許可リスト外のタグと属性を送信前に除去する。
type EmailSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewEmailSanitizer はEmailSanitizerを生成する。
// 許可タグ: h1, h2, p, br, strong, em, a。aタグはhref（http/https）のみ許可する。
func NewEmailSanitizer() *EmailSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("h1", "h2", "p", "br", "strong", "em")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)

	return &EmailSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// SanitizeHTML はHTML本文をサニタイズする。
func (s *EmailSanitizer) SanitizeHTML(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// StripTags はすべてのタグを除去したテキストを返す。件名などプレーンテキストに使用する。
func (s *EmailSanitizer) StripTags(text string) string {
	return s.strict.Sanitize(text)
}
