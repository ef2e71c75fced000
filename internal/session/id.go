package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// idBytes はセッションIDのエントロピー（256bit）。
const idBytes = 32

// idLength はbase64url（パディングなし）でエンコードしたIDの長さ。
var idLength = base64.RawURLEncoding.EncodedLen(idBytes)

// GenerateID は暗号的に安全なセッションIDを生成する。
func GenerateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// validID はIDがGenerateIDの出力形式に一致するかを返す。
// 形式不一致のIDはストアに問い合わせずに無効とする。
func validID(id string) bool {
	if len(id) != idLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
