package oauth

var linkedInEndpoints = Endpoints{
	IssuerURL:   "https://www.linkedin.com/oauth",
	AuthURL:     "https://www.linkedin.com/oauth/v2/authorization",
	TokenURL:    "https://www.linkedin.com/oauth/v2/accessToken",
	UserInfoURL: "https://api.linkedin.com/v2/userinfo",
}

// NewLinkedIn はLinkedIn(OpenID Connect)プロバイダーを生成する。PKCEは使用しない。
func NewLinkedIn(creds Credentials, opts ...Option) Provider {
	return newClient(ProviderLinkedIn, false, creds, linkedInEndpoints,
		[]string{"openid", "profile", "email"}, opts...)
}
