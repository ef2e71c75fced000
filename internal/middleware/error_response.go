package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/unlinked/internal/model"
)

// Response はAPIレスポンスの統一フォーマット。
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CookieClearer はセッションCookieを削除するCookieを返す。session.Managerが実装する。
type CookieClearer interface {
	BlankCookie() *http.Cookie
}

// WriteJSON はJSONレスポンスを書き込む。
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteMessage は成功レスポンスを書き込む。
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{Success: true, Message: message})
}

// WriteError はエラーを統一フォーマットで書き込む。
// *model.APIError以外のエラーは内部エラーとして扱い、詳細はログのみに記録する。
// ClearSessionが指定されたエラーではセッションCookieも削除する。
func WriteError(w http.ResponseWriter, r *http.Request, err error, clearer CookieClearer) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
	}
	status := apiErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	} else if apiErr.Err != nil {
		slog.Warn("request rejected",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", apiErr.Code),
			slog.String("error", apiErr.Err.Error()),
		)
	}

	if apiErr.ClearSession && clearer != nil {
		http.SetCookie(w, clearer.BlankCookie())
	}
	WriteJSON(w, status, Response{Success: false, Message: apiErr.Message})
}
