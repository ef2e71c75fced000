package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost はbcryptの既定ワークファクター。1回のハッシュにおよそ100〜250msかかる。
const DefaultHashCost = 12

// dummyPassword はアカウントが存在しない場合の照合に使う固定値。
const dummyPassword = "unlinked-timing-equalizer"

// PasswordHasher はパスワードの一方向ハッシュと照合を行う。
type PasswordHasher interface {
	// Hash は平文からハッシュを生成する。ソルトはハッシュに埋め込まれる。
	Hash(plaintext string) (string, error)
	// Verify は平文がハッシュと一致するかを返す。形式不正のハッシュは不一致として扱う。
	Verify(plaintext, digest string) bool
	// VerifyDummy は照合対象がない場合に同程度の時間を消費する。
	VerifyDummy(plaintext string)
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
type BcryptHasher struct {
	cost  int
	dummy []byte
}

// NewBcryptHasher はBcryptHasherを生成する。
// タイミング均一化用のダミーハッシュを同じコストで事前に生成する。
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d: %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &BcryptHasher{cost: cost, dummy: dummy}, nil
}

// Hash は平文からbcryptハッシュを生成する。
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文がハッシュと一致するかを返す。
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	return err == nil
}

// VerifyDummy はダミーハッシュと照合し、結果を捨てる。
func (h *BcryptHasher) VerifyDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
