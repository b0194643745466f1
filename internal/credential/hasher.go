// Package credential はパスワードのハッシュ生成と照合を提供する。
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2idのパラメータ。
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32

	saltBytes = 16
)

// Hasher はパスワードのハッシュ生成と照合を行う。
// pepperはソルトと違い保存されず、環境設定からのみ供給される。
// データベースだけが漏れてもpepperなしではオフライン総当たりできない。
type Hasher struct {
	pepper string
}

// NewHasher はHasherを生成する。
func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: pepper}
}

// Issue は新しいソルトを生成し、パスワードのハッシュとソルトを返す。
// ソルトは資格情報と一緒に保存する。
func (h *Hasher) Issue(password string) (hash []byte, salt string, err error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt = hex.EncodeToString(raw)

	return h.derive(password, salt), salt, nil
}

// Verify はパスワードが保存済みハッシュと一致するかを判定する。
// 比較は定数時間で行う。
func (h *Hasher) Verify(password, salt string, hash []byte) bool {
	derived := h.derive(password, salt)
	return subtle.ConstantTimeCompare(derived, hash) == 1
}

func (h *Hasher) derive(password, salt string) []byte {
	return argon2.IDKey([]byte(password), []byte(salt+h.pepper), argonTime, argonMemory, argonThreads, argonKeyLen)
}
