package oauth

import "golang.org/x/oauth2"

var googleEndpoints = Endpoints{
	IssuerURL:   "https://accounts.google.com",
	AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:    "https://oauth2.googleapis.com/token",
	UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
}

// NewGoogle はGoogleプロバイダーを生成する。
// PKCE(S256)を使用し、リフレッシュトークン取得のためaccess_type=offlineを付与する。
func NewGoogle(creds Credentials, opts ...Option) Provider {
	c := newClient(ProviderGoogle, true, creds, googleEndpoints,
		[]string{"openid", "email", "profile"}, opts...)
	c.authOptions = []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	return c
}
