package session

import (
	"encoding/base64"
	"fmt"
)

// CookieName はセッションマーカーを運ぶCookieの名前。
const CookieName = "__session_token"

// EncodeMarker はセッショントークンをCookieに載せるマーカーへ変換する。
func EncodeMarker(token string) string {
	return base64.StdEncoding.EncodeToString([]byte(token))
}

// DecodeMarker はCookieマーカーをセッショントークンへ復号する。
// 復号できないマーカーはクライアント側で壊れたCookieとして扱う。
func DecodeMarker(marker string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(marker)
	if err != nil {
		return "", fmt.Errorf("failed to decode session marker: %w", err)
	}
	return string(raw), nil
}
