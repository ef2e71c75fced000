// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// Messageはクライアントに返してよい文言のみを保持し、内部原因はErrに保持する。
type APIError struct {
	Code    string // エラーコード
	Message string // クライアント向けメッセージ
	Status  int    // HTTPステータスコード
	// ClearSession はレスポンスで空のセッションCookieを送出することを示す。
	ClearSession bool
	Err          error // ログ専用の内部原因
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は内部原因を返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeCredentials   = "INVALID_CREDENTIALS"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeOAuthProtocol = "OAUTH_PROTOCOL_ERROR"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
// messageには最初に違反したルールの文言を指定する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewCredentialsError はログイン失敗エラーを生成する。
// アカウントの存在有無やパスワード不一致を区別しない。
func NewCredentialsError() *APIError {
	return &APIError{
		Code:    ErrCodeCredentials,
		Message: "Invalid credentials",
		Status:  http.StatusBadRequest,
	}
}

// NewEmailConflictError はメールアドレス重複エラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:    ErrCodeConflict,
		Message: "Email already exists",
		Status:  http.StatusBadRequest,
	}
}

// NewOAuthProtocolError はOAuthハンドシェイクまたはプロバイダー連携の失敗を生成する。
func NewOAuthProtocolError(message string, err error) *APIError {
	return &APIError{
		Code:    ErrCodeOAuthProtocol,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// NewInvalidStateError はstate検証失敗エラーを生成する。
// セッションCookieも破棄する。
func NewInvalidStateError(err error) *APIError {
	e := NewOAuthProtocolError("Invalid state", err)
	e.ClearSession = true
	return e
}

// NewAuthorizationError は未認証エラーを生成する。
func NewAuthorizationError(clearSession bool) *APIError {
	return &APIError{
		Code:         ErrCodeUnauthorized,
		Message:      "Unauthorized",
		Status:       http.StatusUnauthorized,
		ClearSession: clearSession,
	}
}

// NewForbiddenError はロール不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Message: "Forbidden",
		Status:  http.StatusForbidden,
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はErrに保持してログのみに記録し、クライアントには一般的な文言を返す。
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}
