package model

import (
	"fmt"
	"net/http"
)

// ErrorCode はAPIエラーの安定した数値コードを表す。
// コードはクライアントとの契約であり、一度公開したら変更しない。
type ErrorCode int

// 定義済みエラーコード
const (
	// サーバー起因（詳細はログのみに残し、クライアントには漏らさない）
	CodeInternal ErrorCode = 100

	// セッション
	CodeSessionCookieAbsent ErrorCode = 110
	CodeSessionRecordAbsent ErrorCode = 111

	// 登録
	CodeDuplicateUsername ErrorCode = 120
	CodePasswordMismatch  ErrorCode = 121

	// ログイン（ユーザー名誤りとパスワード誤りは区別せず同一コードを返す）
	CodeInvalidCredentials ErrorCode = 130

	// multipartアップロード
	CodeMultipartRequest ErrorCode = 140
	CodeMultipartKey     ErrorCode = 141
	CodeMultipartValue   ErrorCode = 142

	// ファイル
	CodePermissionDenied ErrorCode = 150
	CodeInvalidDuration  ErrorCode = 151
	CodeFileNotFound     ErrorCode = 152
)

// statusByCode はエラーコードからHTTPステータスへの対応表。
// ここに載っていないコードは500として扱う。
var statusByCode = map[ErrorCode]int{
	CodeInternal:            http.StatusInternalServerError,
	CodeSessionCookieAbsent: http.StatusNotFound,
	CodeSessionRecordAbsent: http.StatusNotFound,
	CodeDuplicateUsername:   http.StatusConflict,
	CodePasswordMismatch:    http.StatusUnprocessableEntity,
	CodeInvalidCredentials:  http.StatusUnprocessableEntity,
	CodeMultipartRequest:    http.StatusLengthRequired,
	CodeMultipartKey:        http.StatusBadRequest,
	CodeMultipartValue:      http.StatusBadRequest,
	CodePermissionDenied:    http.StatusForbidden,
	CodeInvalidDuration:     http.StatusUnprocessableEntity,
	CodeFileNotFound:        http.StatusNotFound,
}

// APIError は統一エラーフォーマットを表す。
// クライアント起因のエラーのみがAPIErrorとして伝播し、
// それ以外のerrorはすべてサーバーエラー（コード100）に落とされる。
type APIError struct {
	Code     ErrorCode // 安定した数値コード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: session, registration, auth, upload, file, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// HTTPStatus はエラーコードに対応するHTTPステータスコードを返す。
func (e *APIError) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewSessionCookieAbsentError はセッションCookie未添付エラーを生成する。
func NewSessionCookieAbsentError() *APIError {
	return &APIError{
		Code:     CodeSessionCookieAbsent,
		Message:  "セッションCookieが見つかりません。",
		Category: "session",
	}
}

// NewSessionRecordAbsentError はセッションレコード不在エラーを生成する。
// Cookieはあるが対応するレコードがない（失効済み・他環境のトークン）場合。
func NewSessionRecordAbsentError() *APIError {
	return &APIError{
		Code:     CodeSessionRecordAbsent,
		Message:  "セッションが見つかりません。ログインし直してください。",
		Category: "session",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError(name string) *APIError {
	return &APIError{
		Code:     CodeDuplicateUsername,
		Message:  fmt.Sprintf("ユーザー名は既に使われています: %s", name),
		Category: "registration",
	}
}

// NewPasswordMismatchError はパスワード不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     CodePasswordMismatch,
		Message:  "確認用パスワードが一致しません。",
		Category: "registration",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー名の存在有無を漏らさないため、原因は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     CodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
	}
}

// NewMultipartRequestError はmultipartリクエスト全体の読み取り失敗エラーを生成する。
func NewMultipartRequestError(reason string) *APIError {
	return &APIError{
		Code:     CodeMultipartRequest,
		Message:  fmt.Sprintf("アップロードリクエストを読み取れません: %s", reason),
		Category: "upload",
	}
}

// NewMultipartKeyError は必須フィールド欠落エラーを生成する。
func NewMultipartKeyError(key string) *APIError {
	return &APIError{
		Code:     CodeMultipartKey,
		Message:  fmt.Sprintf("必須フィールドがありません: %s", key),
		Category: "upload",
	}
}

// NewMultipartValueError はフィールド値不正エラーを生成する。
func NewMultipartValueError(key, val string) *APIError {
	return &APIError{
		Code:     CodeMultipartValue,
		Message:  fmt.Sprintf("フィールド %s の値が不正です: %s", key, val),
		Category: "upload",
	}
}

// NewPermissionDeniedError はファイル操作の権限エラーを生成する。
func NewPermissionDeniedError(key string) *APIError {
	return &APIError{
		Code:     CodePermissionDenied,
		Message:  fmt.Sprintf("このファイルを操作する権限がありません: %s", key),
		Category: "file",
	}
}

// NewInvalidDurationError は保持期間コード不正エラーを生成する。
func NewInvalidDurationError(code string) *APIError {
	return &APIError{
		Code:     CodeInvalidDuration,
		Message:  fmt.Sprintf("無効な保持期間です: %s（d, w, m, q, y のいずれかを指定してください）", code),
		Category: "file",
	}
}

// NewFileNotFoundError はファイル不在エラーを生成する。
func NewFileNotFoundError(key string) *APIError {
	return &APIError{
		Code:     CodeFileNotFound,
		Message:  fmt.Sprintf("指定されたファイルが見つかりません: %s", key),
		Category: "file",
	}
}

// NewInternalError はサーバーエラーの統一レスポンス用エラーを生成する。
// 内部の詳細はここには載せず、呼び出し側でログに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     CodeInternal,
		Message:  "内部エラーが発生しました。しばらく待ってから再度お試しください。",
		Category: "system",
	}
}
