package middleware

import (
	"net/http"

	"github.com/hitoshi/unlinked/internal/model"
)

// RequireRole は認証済みアカウントのロールが指定ロールのいずれかであることを要求する。
// セッションミドルウェアの後段に配置する。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	allowed := make(map[model.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				WriteError(w, r, model.NewAuthorizationError(false), nil)
				return
			}
			if !allowed[auth.Account.Role] {
				WriteError(w, r, model.NewForbiddenError(), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
