package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/unlinked/internal/model"
)

// NewOriginCheckMiddleware は状態変更リクエストの送信元オリジンを検証するミドルウェアを返す。
// セッションCookieがSameSite=Noneで送られる構成でのクロスサイトリクエストを拒否する。
// OriginヘッダーがなければRefererのオリジンを使用し、どちらもない場合は許可する。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
func NewOriginCheckMiddleware(trustedOrigins []string) func(next http.Handler) http.Handler {
	trusted := make(map[string]bool, len(trustedOrigins))
	for _, o := range trustedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			trusted[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := requestOrigin(r)
			if origin != "" && !trusted[origin] {
				slog.Warn("cross-origin request rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				WriteError(w, r, model.NewForbiddenError(), nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestOrigin はOriginヘッダー、なければRefererからオリジンを取り出す。
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return strings.TrimRight(origin, "/")
	}
	ref := r.Header.Get("Referer")
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
