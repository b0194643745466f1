// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 表示名は登録時に一意性が保証され、以降変更されない。
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Credential はユーザーのパスワード資格情報を表す。
// Userと1:1で対応し、登録トランザクション内で一度だけ作成される。
// パスワード変更の経路は存在しないため、更新されることはない。
type Credential struct {
	UserID    string
	Hash      []byte
	Salt      string
	CreatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// トークンは全セッションを通じて一意な不透明文字列であり、
// ログアウトまで有効（有効期限は持たない）。
type Session struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
}
