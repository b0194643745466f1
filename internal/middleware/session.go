// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/filedrop/internal/model"
	"github.com/hitoshi/filedrop/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// UserResolver はセッショントークンから持ち主のユーザーを解決する。
// identity.Serviceの部分集合として定義する。
type UserResolver interface {
	CurrentUser(ctx context.Context, token string) (*model.User, error)
}

// NewSessionMiddleware はHTTP Only Cookieのセッションマーカーを検証する
// ミドルウェアを返す。認証済みユーザーIDをリクエストコンテキストに注入する。
//
// Cookieがない場合とセッションが失効済みの場合はいずれも404で返し、
// エンドポイントの存在を未認証クライアントから観測させない。
// 失効済みマーカーと復号できないマーカーはCookieを消してから返す。
func NewSessionMiddleware(resolver UserResolver, secureCookie bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(session.CookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, model.NewSessionCookieAbsentError())
				return
			}

			token, err := session.DecodeMarker(cookie.Value)
			if err != nil {
				ClearSessionCookie(w, secureCookie)
				WriteErrorResponse(w, model.NewSessionRecordAbsentError())
				return
			}

			user, err := resolver.CurrentUser(r.Context(), token)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) && apiErr.Code == model.CodeSessionRecordAbsent {
					ClearSessionCookie(w, secureCookie)
					WriteErrorResponse(w, apiErr)
					return
				}
				slog.Error("failed to resolve session user",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie はセッションマーカーをHTTP Only Cookieとして書き込む。
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    session.EncodeMarker(token),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを失効させる。
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
