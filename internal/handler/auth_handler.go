// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/filedrop/internal/middleware"
	"github.com/hitoshi/filedrop/internal/model"
	"github.com/hitoshi/filedrop/internal/session"
)

// IdentityServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	Register(ctx context.Context, name, passwordOne, passwordTwo string) (*model.Session, error)
	Login(ctx context.Context, name, password string) (*model.Session, error)
	Logout(ctx context.Context, token string) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
	Withdraw(ctx context.Context, userID string) error
}

// AuthRecorder は認証ハンドラーが記録するメトリクス。
type AuthRecorder interface {
	RecordRegistration()
	RecordLogin()
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure bool
}

// AuthHandler はアカウントとセッション関連のHTTPハンドラー。
type AuthHandler struct {
	service IdentityServiceInterface
	metrics AuthRecorder
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service IdentityServiceInterface, metrics AuthRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		metrics: metrics,
		config:  config,
	}
}

type registerRequest struct {
	Username    string `json:"username"`
	PasswordOne string `json:"password_one"`
	PasswordTwo string `json:"password_two"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Register は新規アカウントを作成し、セッションCookieを設定する。
// POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.service.Register(r.Context(), req.Username, req.PasswordOne, req.PasswordTwo)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordRegistration()
	middleware.SetSessionCookie(w, sess.Token, h.config.CookieSecure)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sessionResponse{Token: session.EncodeMarker(sess.Token)})
}

// Login は資格情報を照合し、セッションCookieを設定する。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordLogin()
	middleware.SetSessionCookie(w, sess.Token, h.config.CookieSecure)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionResponse{Token: session.EncodeMarker(sess.Token)})
}

// Logout はセッションを失効させる。
// DELETE /api/login
//
// 成否にかかわらずCookieは消す。サーバー側の失効に失敗しても
// クライアント側に残ったマーカーはもう使いものにならないため。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, model.NewSessionCookieAbsentError())
		return
	}

	token, err := session.DecodeMarker(cookie.Value)
	if err != nil {
		middleware.ClearSessionCookie(w, h.config.CookieSecure)
		middleware.WriteErrorResponse(w, model.NewSessionRecordAbsentError())
		return
	}

	middleware.ClearSessionCookie(w, h.config.CookieSecure)

	if err := h.service.Logout(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		slog.Error("user ID missing after session middleware", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userResponse{
		ID:        user.ID,
		Username:  user.Name,
		CreatedAt: user.CreatedAt,
	})
}

// Withdraw はアカウントと所有する全データを削除する。
// DELETE /api/user
func (h *AuthHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		slog.Error("user ID missing after session middleware", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.ClearSessionCookie(w, h.config.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}
